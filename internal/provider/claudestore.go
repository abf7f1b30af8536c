package provider

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/kmladek/agentsessions/internal/session"
)

// The Claude store schema varies between CLI builds: tables and
// columns get renamed across releases. Extraction therefore probes
// sqlite_master and table_info for known candidates instead of
// assuming a fixed layout, and skips anything it cannot query.

type conversationMeta struct {
	projectID  string
	workingDir string
	startedAt  time.Time
	updatedAt  time.Time
}

// parseClaudeStore reads every conversation out of a __store.db
// file. Session IDs get a "store:" prefix so they never collide with
// transcript-derived sessions, and all of them share the store file
// as their source path.
func parseClaudeStore(path string) ([]*session.Session, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=2000")
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRow(
		"SELECT count(*) FROM sqlite_master").Scan(&tables); err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}

	projectPaths := storeProjectPaths(db)
	meta := storeConversationMeta(db)
	messages := storeConversationMessages(db)

	convIDs := make([]string, 0, len(messages))
	for id := range messages {
		convIDs = append(convIDs, id)
	}
	sort.Strings(convIDs)

	var sessions []*session.Session
	for _, convID := range convIDs {
		msgs := messages[convID]
		if len(msgs) == 0 {
			continue
		}
		session.SortMessages(msgs)

		var startedAt, updatedAt time.Time
		for _, msg := range msgs {
			if msg.CreatedAt.IsZero() {
				continue
			}
			if startedAt.IsZero() || msg.CreatedAt.Before(startedAt) {
				startedAt = msg.CreatedAt
			}
			if updatedAt.IsZero() || msg.CreatedAt.After(updatedAt) {
				updatedAt = msg.CreatedAt
			}
		}

		m := meta[convID]
		workingDir := m.workingDir
		if workingDir == "" && m.projectID != "" {
			workingDir = projectPaths[m.projectID]
		}
		if !m.startedAt.IsZero() {
			startedAt = m.startedAt
		}
		if !m.updatedAt.IsZero() {
			updatedAt = m.updatedAt
		}

		sessions = append(sessions, &session.Session{
			Provider:   IDClaude,
			ID:         "store:" + convID,
			SourcePath: path,
			WorkingDir: workingDir,
			StartedAt:  startedAt,
			UpdatedAt:  updatedAt,
			Messages:   msgs,
		})
	}
	return sessions, nil
}

// storeProjectPaths maps project identifiers to filesystem paths.
func storeProjectPaths(db *sql.DB) map[string]string {
	paths := make(map[string]string)
	for _, table := range []string{"projects", "project_metadata"} {
		columns := tableColumns(db, table)
		if len(columns) == 0 {
			continue
		}
		idCol := firstColumn(columns, "id", "project_id", "uuid")
		pathCol := firstColumn(columns,
			"absolute_path", "project_path", "workspace_root",
			"root_path", "path")
		if idCol == "" || pathCol == "" {
			continue
		}
		rows, err := db.Query(
			"SELECT " + quoteIdent(idCol) + ", " + quoteIdent(pathCol) +
				" FROM " + quoteIdent(table))
		if err != nil {
			continue
		}
		for rows.Next() {
			var id, dir sql.NullString
			if rows.Scan(&id, &dir) != nil {
				continue
			}
			if id.Valid && dir.Valid && strings.TrimSpace(dir.String) != "" {
				paths[id.String] = dir.String
			}
		}
		rows.Close()
	}
	return paths
}

// storeConversationMeta extracts per-conversation working dir and
// timestamp metadata from whichever summary table exists.
func storeConversationMeta(db *sql.DB) map[string]conversationMeta {
	meta := make(map[string]conversationMeta)
	for _, table := range []string{"conversations", "conversation_summaries"} {
		ingestMetaTable(db, table, meta)
	}
	return meta
}

func ingestMetaTable(
	db *sql.DB, table string, meta map[string]conversationMeta,
) {
	columns := tableColumns(db, table)
	if len(columns) == 0 {
		return
	}
	idCol := firstColumn(columns,
		"conversation_id", "conversation_uuid", "id", "uuid")
	if idCol == "" {
		return
	}
	projectCol := firstColumn(columns, "project_id", "workspace_id")
	workdirCols := presentColumns(columns,
		"project_path", "workspace_root", "root_path", "path",
		"absolute_path")
	timestampCols := presentColumns(columns,
		"created_at", "started_at", "updated_at", "last_activity_at")
	nestedCols := presentColumns(columns,
		"metadata", "project", "workspace", "data")

	rows, cols, err := queryAll(db, table)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		row, ok := scanRow(rows, cols)
		if !ok {
			continue
		}
		convID := rowString(row, idCol)
		if convID == "" {
			continue
		}
		entry := meta[convID]

		if projectCol != "" && entry.projectID == "" {
			entry.projectID = rowString(row, projectCol)
		}
		if entry.workingDir == "" {
			for _, col := range workdirCols {
				if dir := rowString(row, col); strings.TrimSpace(dir) != "" {
					entry.workingDir = dir
					break
				}
			}
		}
		if entry.workingDir == "" {
			for _, col := range nestedCols {
				raw := rowString(row, col)
				if !gjson.Valid(raw) {
					continue
				}
				nested := gjson.Parse(raw)
				if !nested.IsObject() {
					continue
				}
				if dir := claudeEventWorkdir(nested); dir != "" {
					entry.workingDir = dir
					break
				}
			}
		}
		for _, col := range timestampCols {
			ts := parseTimestampStr(rowString(row, col))
			if ts.IsZero() {
				continue
			}
			if entry.startedAt.IsZero() || ts.Before(entry.startedAt) {
				entry.startedAt = ts
			}
			if entry.updatedAt.IsZero() || ts.After(entry.updatedAt) {
				entry.updatedAt = ts
			}
		}
		meta[convID] = entry
	}
}

// storeConversationMessages gathers messages per conversation across
// the message tables the store may carry.
func storeConversationMessages(db *sql.DB) map[string][]session.Message {
	conversations := make(map[string][]session.Message)
	messageTables := []struct {
		name        string
		defaultRole string
	}{
		{"conversation_messages", ""},
		{"messages", ""},
		{"base_messages", ""},
		{"assistant_messages", "assistant"},
		{"user_messages", "user"},
	}
	for _, mt := range messageTables {
		ingestMessageTable(db, mt.name, mt.defaultRole, conversations)
	}
	return conversations
}

func ingestMessageTable(
	db *sql.DB, table, defaultRole string,
	conversations map[string][]session.Message,
) {
	columns := tableColumns(db, table)
	if len(columns) == 0 {
		return
	}
	convCol := firstColumn(columns,
		"conversation_id", "conversation_uuid", "conversation",
		"session_id", "session_uuid")
	if convCol == "" {
		return
	}
	roleCols := presentColumns(columns, "role", "author", "speaker", "sender")
	contentCols := presentColumns(columns,
		"content", "text", "body", "message", "message_json", "payload")
	tsCol := firstColumn(columns, "created_at", "timestamp", "time", "ts")

	rows, cols, err := queryAll(db, table)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		row, ok := scanRow(rows, cols)
		if !ok {
			continue
		}
		convID := rowString(row, convCol)
		if convID == "" {
			continue
		}

		role := defaultRole
		for _, col := range roleCols {
			if v := strings.TrimSpace(rowString(row, col)); v != "" {
				role = v
				break
			}
		}
		if role == "" {
			role = "event"
		}

		var text string
		for _, col := range contentCols {
			raw := rowString(row, col)
			if raw == "" {
				continue
			}
			if gjson.Valid(raw) && (strings.HasPrefix(raw, "{") ||
				strings.HasPrefix(raw, "[")) {
				text = extractTextContent(gjson.Parse(raw))
			} else {
				text = raw
			}
			if strings.TrimSpace(text) != "" {
				break
			}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		var ts time.Time
		if tsCol != "" {
			ts = parseTimestampStr(rowString(row, tsCol))
		}
		conversations[convID] = append(conversations[convID],
			session.Message{Role: role, Content: text, CreatedAt: ts})
	}
}

// tableColumns returns the column names of table, or nil when the
// table does not exist or cannot be inspected.
func tableColumns(db *sql.DB, table string) map[string]bool {
	var exists int
	err := db.QueryRow(
		"SELECT 1 FROM sqlite_master WHERE type='table' AND name=? LIMIT 1",
		table).Scan(&exists)
	if err != nil {
		return nil
	}

	rows, err := db.Query("PRAGMA table_info(" + quoteIdent(table) + ")")
	if err != nil {
		return nil
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var (
			cid, notnull, pk int
			name, ctype      string
			dflt             sql.NullString
		)
		if rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk) == nil {
			columns[name] = true
		}
	}
	return columns
}

func firstColumn(columns map[string]bool, candidates ...string) string {
	for _, c := range candidates {
		if columns[c] {
			return c
		}
	}
	return ""
}

func presentColumns(columns map[string]bool, candidates ...string) []string {
	var present []string
	for _, c := range candidates {
		if columns[c] {
			present = append(present, c)
		}
	}
	return present
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// queryAll selects every row of table and returns the rows together
// with the result column names.
func queryAll(db *sql.DB, table string) (*sql.Rows, []string, error) {
	rows, err := db.Query("SELECT * FROM " + quoteIdent(table))
	if err != nil {
		return nil, nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, nil, err
	}
	return rows, cols, nil
}

// scanRow scans the current row into a column-name map, rendering
// every value as a string.
func scanRow(rows *sql.Rows, cols []string) (map[string]string, bool) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if rows.Scan(ptrs...) != nil {
		return nil, false
	}
	row := make(map[string]string, len(cols))
	for i, col := range cols {
		switch v := values[i].(type) {
		case nil:
		case string:
			row[col] = v
		case []byte:
			row[col] = string(v)
		case int64:
			row[col] = fmt.Sprintf("%d", v)
		case float64:
			row[col] = fmt.Sprintf("%g", v)
		default:
			row[col] = fmt.Sprint(v)
		}
	}
	return row, true
}

func rowString(row map[string]string, col string) string {
	return row[col]
}
