package storage

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "github.com/lib/pq"

	"udp-monitor/internal/model"
)

// PostgresStore is the postgres-backed Store, selected when more than a
// local database file is wanted. Same serialization discipline as the
// sqlite backend.
type PostgresStore struct {
	mu sync.Mutex
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL,
			source_address TEXT NOT NULL,
			source_port INTEGER NOT NULL,
			payload BYTEA NOT NULL,
			payload_text TEXT,
			payload_size INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_source ON messages(source_address, source_port)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("postgres init: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(sourceAddress string, sourcePort int, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receivedAt := time.Now().UTC()
	// Postgres TEXT values cannot contain NUL bytes, so those payloads
	// are stored without the decoded column; reads recover the text form
	// from the blob.
	var payloadText sql.NullString
	if utf8.Valid(payload) && bytes.IndexByte(payload, 0) < 0 {
		payloadText = sql.NullString{String: string(payload), Valid: true}
	}

	var id int64
	err := s.db.QueryRow(`
		INSERT INTO messages (received_at, source_address, source_port, payload, payload_text, payload_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		receivedAt, sourceAddress, sourcePort, payload, payloadText, len(payload)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Query(f QueryFilter) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT id, received_at, source_address, source_port, payload, payload_text, payload_size FROM messages`
	var conditions []string
	var params []any

	if f.SourceAddress != "" {
		params = append(params, f.SourceAddress)
		conditions = append(conditions, fmt.Sprintf("source_address = $%d", len(params)))
	}
	if f.SourcePort != 0 {
		params = append(params, f.SourcePort)
		conditions = append(conditions, fmt.Sprintf("source_port = $%d", len(params)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY received_at DESC, id DESC"

	if f.Limit > 0 {
		params = append(params, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(params))
	}
	if f.Offset > 0 {
		params = append(params, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(params))
	}

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanPostgresMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) GetByID(id int64) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, received_at, source_address, source_port, payload, payload_text, payload_size
		FROM messages WHERE id = $1`, id)
	m, err := scanPostgresMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) DeleteOlderThan(age time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-age)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM messages WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("delete old messages: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM messages`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanPostgresMessage(scan func(...any) error) (*model.Message, error) {
	var m model.Message
	var payloadText sql.NullString
	if err := scan(&m.ID, &m.ReceivedAt, &m.SourceAddress, &m.SourcePort, &m.Payload, &payloadText, &m.PayloadSize); err != nil {
		return nil, err
	}
	m.ReceivedAt = m.ReceivedAt.UTC()
	if payloadText.Valid {
		text := payloadText.String
		m.PayloadText = &text
	} else if utf8.Valid(m.Payload) {
		// NUL-containing payloads have no stored text column.
		text := string(m.Payload)
		m.PayloadText = &text
	}
	return &m, nil
}
