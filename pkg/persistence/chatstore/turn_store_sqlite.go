package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/go-go-golems/concierge/pkg/usage"
)

type SQLiteTurnStore struct {
	db *sql.DB
}

var _ TurnStore = &SQLiteTurnStore{}

func NewSQLiteTurnStore(dsn string) (*SQLiteTurnStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite turn store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteTurnStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTurnStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteTurnStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite turn store: db is nil")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS turns (
			conv_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			user_message TEXT NOT NULL DEFAULT '',
			markdown TEXT NOT NULL DEFAULT '',
			usage_json TEXT NOT NULL DEFAULT '{}',
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY (conv_id, turn_id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			hash_algorithm TEXT NOT NULL DEFAULT 'sha256-canonical-json-v1',
			role TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (message_id, content_hash)
		);`,
		`CREATE TABLE IF NOT EXISTS turn_messages (
			conv_id TEXT NOT NULL,
			turn_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			message_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			PRIMARY KEY (conv_id, turn_id, ordinal),
			FOREIGN KEY (conv_id, turn_id) REFERENCES turns(conv_id, turn_id) ON DELETE CASCADE,
			FOREIGN KEY (message_id, content_hash) REFERENCES messages(message_id, content_hash)
		);`,
		`CREATE INDEX IF NOT EXISTS turns_by_conv ON turns(conv_id, created_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS turn_messages_by_message ON turn_messages(message_id, content_hash);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite turn store: migrate")
		}
	}
	return nil
}

func (s *SQLiteTurnStore) Save(ctx context.Context, t TurnRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite turn store: db is nil")
	}
	if ctx == nil {
		return errors.New("sqlite turn store: ctx is nil")
	}
	if strings.TrimSpace(t.ConvID) == "" {
		return errors.New("sqlite turn store: convID is empty")
	}
	if strings.TrimSpace(t.TurnID) == "" {
		return errors.New("sqlite turn store: turnID is empty")
	}
	if strings.TrimSpace(t.Phase) == "" {
		return errors.New("sqlite turn store: phase is empty")
	}
	if t.CreatedAtMs <= 0 {
		t.CreatedAtMs = time.Now().UnixMilli()
	}
	usageJSON, err := json.Marshal(t.Usage)
	if err != nil {
		return errors.Wrap(err, "sqlite turn store: marshal usage")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlite turn store: begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns(
			conv_id, turn_id, phase, created_at_ms, kind, user_message, markdown, usage_json, updated_at_ms
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conv_id, turn_id) DO UPDATE SET
			phase = excluded.phase,
			created_at_ms = MIN(turns.created_at_ms, excluded.created_at_ms),
			kind = excluded.kind,
			user_message = excluded.user_message,
			markdown = excluded.markdown,
			usage_json = excluded.usage_json,
			updated_at_ms = MAX(turns.updated_at_ms, excluded.updated_at_ms)
	`, t.ConvID, t.TurnID, t.Phase, t.CreatedAtMs, t.Kind, t.UserMessage, t.Markdown, string(usageJSON), time.Now().UnixMilli()); err != nil {
		return errors.Wrap(err, "sqlite turn store: upsert turns row")
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM turn_messages WHERE conv_id = ? AND turn_id = ?`, t.ConvID, t.TurnID); err != nil {
		return errors.Wrap(err, "sqlite turn store: clear existing membership rowset")
	}

	for i, m := range t.Messages {
		messageID := strings.TrimSpace(m.ID)
		if messageID == "" {
			messageID = fmt.Sprintf("%s:%d", t.TurnID, i)
		}
		createdAt := m.CreatedAtMs
		if createdAt <= 0 {
			createdAt = t.CreatedAtMs
		}
		hash, err := ComputeMessageContentHash(m.Role, m.Content)
		if err != nil {
			return errors.Wrap(err, "sqlite turn store: compute message content hash")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages(message_id, content_hash, hash_algorithm, role, content, created_at_ms)
			VALUES(?, ?, ?, ?, ?, ?)
			ON CONFLICT(message_id, content_hash) DO UPDATE SET
				created_at_ms = MIN(messages.created_at_ms, excluded.created_at_ms)
		`, messageID, hash, MessageContentHashAlgorithmV1, strings.TrimSpace(m.Role), m.Content, createdAt); err != nil {
			return errors.Wrap(err, "sqlite turn store: upsert messages row")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO turn_messages(conv_id, turn_id, ordinal, message_id, content_hash)
			VALUES(?, ?, ?, ?, ?)
		`, t.ConvID, t.TurnID, i, messageID, hash); err != nil {
			return errors.Wrap(err, "sqlite turn store: insert turn_messages")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "sqlite turn store: commit tx")
	}
	committed = true
	return nil
}

func (s *SQLiteTurnStore) List(ctx context.Context, q TurnQuery) ([]TurnRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite turn store: db is nil")
	}
	if ctx == nil {
		return nil, errors.New("sqlite turn store: ctx is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 200
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.ConvID); v != "" {
		clauses = append(clauses, "conv_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.Phase); v != "" {
		clauses = append(clauses, "phase = ?")
		args = append(args, v)
	}
	if q.SinceMs > 0 {
		clauses = append(clauses, "created_at_ms >= ?")
		args = append(args, q.SinceMs)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT conv_id, turn_id, phase, created_at_ms, kind, user_message, markdown, usage_json
		FROM turns
		%s
		ORDER BY created_at_ms DESC, turn_id DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite turn store: list")
	}
	defer func() { _ = rows.Close() }()

	out := []TurnRecord{}
	for rows.Next() {
		var (
			t         TurnRecord
			usageJSON string
		)
		if err := rows.Scan(&t.ConvID, &t.TurnID, &t.Phase, &t.CreatedAtMs, &t.Kind, &t.UserMessage, &t.Markdown, &usageJSON); err != nil {
			return nil, errors.Wrap(err, "sqlite turn store: scan")
		}
		var c usage.Counters
		if err := json.Unmarshal([]byte(usageJSON), &c); err != nil {
			return nil, errors.Wrap(err, "sqlite turn store: decode usage")
		}
		t.Usage = c
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		msgs, err := s.loadMessages(ctx, out[i].ConvID, out[i].TurnID)
		if err != nil {
			return nil, err
		}
		out[i].Messages = msgs
	}
	return out, nil
}

func (s *SQLiteTurnStore) loadMessages(ctx context.Context, convID, turnID string) ([]MessageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.message_id, m.role, m.content, m.created_at_ms
		FROM turn_messages tm
		JOIN messages m
			ON m.message_id = tm.message_id
			AND m.content_hash = tm.content_hash
		WHERE tm.conv_id = ? AND tm.turn_id = ?
		ORDER BY tm.ordinal ASC
	`, convID, turnID)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite turn store: load messages")
	}
	defer func() { _ = rows.Close() }()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &m.CreatedAtMs); err != nil {
			return nil, errors.Wrap(err, "sqlite turn store: scan message")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SQLiteTurnDSNForFile builds the DSN used for file-backed turn stores.
func SQLiteTurnDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite turn store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}
