package provider

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// extractTextContent extracts readable text from message content.
// content can be a plain string or a JSON array of typed blocks
// (Claude/Codex style). Tool activity is rendered as short bracketed
// labels so it remains searchable without dumping raw JSON.
func extractTextContent(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.Str
	}

	if !content.IsArray() {
		return flattenValue(content)
	}

	var parts []string
	content.ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").Str {
		case "text", "input_text", "output_text":
			if text := block.Get("text").Str; text != "" {
				parts = append(parts, text)
			}
		case "thinking":
			if thinking := block.Get("thinking").Str; thinking != "" {
				parts = append(parts,
					"[Thinking]\n"+thinking+"\n[/Thinking]")
			}
		case "tool_use", "tool_call":
			if name := block.Get("name").Str; name != "" {
				parts = append(parts,
					fmt.Sprintf("[Tool: %s]", name))
			}
		case "tool_result":
			result := flattenValue(block.Get("content"))
			if result != "" {
				parts = append(parts,
					"[Tool result]\n"+truncate(result, 2000))
			}
		default:
			if text := block.Get("text").Str; text != "" {
				parts = append(parts, text)
			}
		}
		return true
	})
	return strings.Join(parts, "\n")
}

// flattenValue flattens arbitrary JSON values into readable text,
// preferring well-known content keys before joining nested values.
func flattenValue(v gjson.Result) string {
	switch {
	case v.Type == gjson.String:
		return v.Str
	case v.Type == gjson.Number || v.Type == gjson.True ||
		v.Type == gjson.False:
		return v.Raw
	case v.IsArray():
		var parts []string
		v.ForEach(func(_, item gjson.Result) bool {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		return strings.Join(parts, " ")
	case v.IsObject():
		for _, key := range []string{"text", "content", "value"} {
			if sub := v.Get(key); sub.Exists() {
				return flattenValue(sub)
			}
		}
		var parts []string
		v.ForEach(func(_, item gjson.Result) bool {
			if s := flattenValue(item); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
