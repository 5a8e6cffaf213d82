package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"udp-monitor/internal/model"
)

// sqliteTimeLayout is a fixed-width UTC timestamp format so that the
// received_at TEXT column sorts lexicographically in chronological order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists messages in a single SQLite database file. A
// mutex serializes all operations; SQLite has no row-level concurrency
// to offer anyway and the store contract requires serialization.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLiteStore opens (and if needed creates) the database at path.
// Accepts a plain file path, a file: URI, or ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if strings.HasPrefix(dsn, "sqlite:///") {
		dsn = "file:" + strings.TrimPrefix(dsn, "sqlite:///")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// A single connection keeps :memory: databases stable and matches
	// the serialized access model.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			received_at TEXT NOT NULL,
			source_address TEXT NOT NULL,
			source_port INTEGER NOT NULL,
			payload BLOB NOT NULL,
			payload_text TEXT,
			payload_size INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_source ON messages(source_address, source_port)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("sqlite init: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Insert(sourceAddress string, sourcePort int, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receivedAt := time.Now().UTC()
	var payloadText sql.NullString
	if utf8.Valid(payload) {
		payloadText = sql.NullString{String: string(payload), Valid: true}
	}

	res, err := s.db.Exec(`
		INSERT INTO messages (received_at, source_address, source_port, payload, payload_text, payload_size)
		VALUES (?, ?, ?, ?, ?, ?)`,
		receivedAt.Format(sqliteTimeLayout), sourceAddress, sourcePort, payload, payloadText, len(payload))
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Query(f QueryFilter) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, received_at, source_address, source_port, payload, payload_text, payload_size FROM messages`
	var conditions []string
	var params []any

	if f.SourceAddress != "" {
		conditions = append(conditions, "source_address = ?")
		params = append(params, f.SourceAddress)
	}
	if f.SourcePort != 0 {
		conditions = append(conditions, "source_port = ?")
		params = append(params, f.SourcePort)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY received_at DESC, id DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		params = append(params, f.Limit)
	} else if f.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
		query += " LIMIT -1"
	}
	if f.Offset > 0 {
		query += " OFFSET ?"
		params = append(params, f.Offset)
	}

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanSQLiteMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) GetByID(id int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, received_at, source_address, source_port, payload, payload_text, payload_size
		FROM messages WHERE id = ?`, id)
	m, err := scanSQLiteMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SQLiteStore) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DeleteOlderThan(age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-age).Format(sqliteTimeLayout)

	// Count and delete in one transaction so the returned count matches
	// exactly what was removed, even with inserts waiting on the mutex.
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int64
	if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE received_at < ?`, cutoff).Scan(&count); err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE received_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanSQLiteMessage(scan func(...any) error) (*model.Message, error) {
	var m model.Message
	var receivedAt string
	var payloadText sql.NullString
	if err := scan(&m.ID, &receivedAt, &m.SourceAddress, &m.SourcePort, &m.Payload, &payloadText, &m.PayloadSize); err != nil {
		return nil, err
	}
	ts, err := time.Parse(sqliteTimeLayout, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("parse received_at: %w", err)
	}
	m.ReceivedAt = ts
	if payloadText.Valid {
		text := payloadText.String
		m.PayloadText = &text
	}
	return &m, nil
}
