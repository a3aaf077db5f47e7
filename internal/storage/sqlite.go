package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatdesk/internal/chat"

	_ "modernc.org/sqlite"
)

// SQLiteStore 基于 SQLite (WAL 模式) 的持久化实现
// SQLiteStore implements Store using SQLite with WAL mode
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore 创建并初始化 SQLite 数据库
// NewSQLiteStore creates and initializes a SQLite database
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, &StorageDirectoryError{Dir: filepath.Dir(dbPath), Err: err}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// 启用 WAL 模式和优化 PRAGMA / Enable WAL and performance PRAGMAs
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		model      TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq        INTEGER NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL DEFAULT '',
		PRIMARY KEY(session_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

// Close 关闭数据库连接 / Close the database connection
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save 在一个事务内替换会话行与全部消息
// Save replaces the session row and all of its messages in one transaction.
func (s *SQLiteStore) Save(id string, messages []chat.Message, meta SessionMeta) error {
	if err := validateID(id); err != nil {
		return err
	}
	now := nowUTC()
	meta.UpdatedAt = now
	if strings.TrimSpace(meta.Title) == "" {
		meta.Title = inferTitle(messages)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// created_at 只在首次插入时写入 / created_at is only written on first insert
	createdAt := strings.TrimSpace(meta.CreatedAt)
	if createdAt == "" {
		createdAt = now
	}
	if _, err := tx.Exec(`
		INSERT INTO sessions (id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title=excluded.title, model=excluded.model, updated_at=excluded.updated_at`,
		id, meta.Title, meta.Model, createdAt, meta.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	// 清除旧消息 / Clear old messages
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id=?", id); err != nil {
		return fmt.Errorf("delete old messages: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO messages (session_id, seq, role, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range messages {
		if _, err := stmt.Exec(id, i, string(msg.Role), msg.Content); err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT id FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Load(id string) (Document, error) {
	if err := validateID(id); err != nil {
		return Document{}, &LoadError{ID: id, Err: err}
	}
	doc := Document{CurrentSession: id, Messages: []chat.Message{}}
	err := s.db.QueryRow(`SELECT title, model, created_at, updated_at FROM sessions WHERE id=?`, id).
		Scan(&doc.Title, &doc.Model, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, &LoadError{ID: id, Err: ErrSessionNotFound}
		}
		return Document{}, &LoadError{ID: id, Err: err}
	}

	rows, err := s.db.Query(`SELECT role, content FROM messages WHERE session_id=? ORDER BY seq`, id)
	if err != nil {
		return Document{}, &LoadError{ID: id, Err: fmt.Errorf("query messages: %w", err)}
	}
	defer rows.Close()
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return Document{}, &LoadError{ID: id, Err: fmt.Errorf("scan message: %w", err)}
		}
		msg := chat.Message{Role: chat.Role(role), Content: content}
		if !msg.Role.Valid() {
			return Document{}, &LoadError{ID: id, Err: fmt.Errorf("message %d: unknown role %q", len(doc.Messages), role)}
		}
		doc.Messages = append(doc.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return Document{}, &LoadError{ID: id, Err: err}
	}
	return doc, nil
}

// Delete 删除会话，消息通过外键级联删除
// Delete removes a session; its messages cascade.
func (s *SQLiteStore) Delete(id string) error {
	if err := validateID(id); err != nil {
		return &DeleteError{ID: id, Err: err}
	}
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id=?`, id); err != nil {
		return &DeleteError{ID: id, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Exists(id string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM sessions WHERE id=?`, id).Scan(&one)
	return err == nil
}
