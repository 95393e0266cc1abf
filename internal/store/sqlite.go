// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides member, message and group persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes
	// writers so transactions never race for the write lock.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS members (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			image_url    TEXT,
			created_at   TEXT NOT NULL,
			last_active  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id                TEXT PRIMARY KEY,
			sender_id         TEXT NOT NULL,
			recipient_id      TEXT NOT NULL,
			content           TEXT NOT NULL,
			sent_at           TEXT NOT NULL,
			read_at           TEXT,
			sender_deleted    INTEGER NOT NULL DEFAULT 0,
			recipient_deleted INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (sender_id) REFERENCES members(id),
			FOREIGN KEY (recipient_id) REFERENCES members(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_recipient_sender
			ON messages(recipient_id, sender_id, sent_at);

		CREATE INDEX IF NOT EXISTS idx_messages_sender
			ON messages(sender_id, sent_at);

		CREATE TABLE IF NOT EXISTS groups (
			name TEXT PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS connections (
			connection_id TEXT PRIMARY KEY,
			group_name    TEXT NOT NULL,
			member_id     TEXT NOT NULL,
			FOREIGN KEY (group_name) REFERENCES groups(name) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_connections_group
			ON connections(group_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping checks that the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if an error is a SQLite constraint violation.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString converts an empty string to a NULL column value.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetMember retrieves a member by ID.
// Returns ErrNotFound if the member doesn't exist.
func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*Member, error) {
	query := `
		SELECT id, display_name, image_url, created_at, last_active
		FROM members
		WHERE id = ?
	`

	var m Member
	var imageURL sql.NullString
	var createdStr, activeStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.DisplayName, &imageURL, &createdStr, &activeStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying member: %w", err)
	}

	m.ImageURL = imageURL.String
	if m.Created, err = parseTime(createdStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if m.LastActive, err = parseTime(activeStr); err != nil {
		return nil, fmt.Errorf("parsing last_active: %w", err)
	}
	return &m, nil
}

// UpsertMember creates the member or updates its display fields.
func (s *SQLiteStore) UpsertMember(ctx context.Context, member *Member) error {
	now := time.Now()
	created := member.Created
	if created.IsZero() {
		created = now
	}
	active := member.LastActive
	if active.IsZero() {
		active = now
	}

	query := `
		INSERT INTO members (id, display_name, image_url, created_at, last_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			image_url = excluded.image_url
	`
	_, err := s.db.ExecContext(ctx, query,
		member.ID,
		member.DisplayName,
		nullString(member.ImageURL),
		formatTime(created),
		formatTime(active),
	)
	if err != nil {
		return fmt.Errorf("upserting member: %w", err)
	}
	return nil
}

// TouchMember stamps the member's last activity time.
// Returns ErrNotFound if the member doesn't exist.
func (s *SQLiteStore) TouchMember(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE members SET last_active = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating last_active: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage persists a new message. SentAt defaults to now.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *Message) error {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	var readAt any
	if msg.ReadAt != nil {
		readAt = formatTime(*msg.ReadAt)
	}

	query := `
		INSERT INTO messages (id, sender_id, recipient_id, content, sent_at, read_at, sender_deleted, recipient_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.RecipientID,
		msg.Content,
		formatTime(msg.SentAt),
		readAt,
		boolToInt(msg.SenderDeleted),
		boolToInt(msg.RecipientDeleted),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("message %q violates a constraint: %w", msg.ID, err)
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("saved message", "id", msg.ID, "sender_id", msg.SenderID, "recipient_id", msg.RecipientID)
	return nil
}

// messageColumns joins both members so messages carry display fields.
const messageColumns = `
	m.id, m.sender_id, COALESCE(s.display_name, ''), COALESCE(s.image_url, ''),
	m.recipient_id, COALESCE(r.display_name, ''), COALESCE(r.image_url, ''),
	m.content, m.sent_at, m.read_at, m.sender_deleted, m.recipient_deleted
`

const messageFrom = `
	FROM messages m
	LEFT JOIN members s ON s.id = m.sender_id
	LEFT JOIN members r ON r.id = m.recipient_id
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var msg Message
	var sentStr string
	var readStr sql.NullString
	var senderDeleted, recipientDeleted int

	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderDisplayName,
		&msg.SenderImageURL,
		&msg.RecipientID,
		&msg.RecipientDisplayName,
		&msg.RecipientImageURL,
		&msg.Content,
		&sentStr,
		&readStr,
		&senderDeleted,
		&recipientDeleted,
	)
	if err != nil {
		return nil, err
	}

	if msg.SentAt, err = parseTime(sentStr); err != nil {
		return nil, fmt.Errorf("parsing sent_at: %w", err)
	}
	if readStr.Valid {
		readAt, err := parseTime(readStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing read_at: %w", err)
		}
		msg.ReadAt = &readAt
	}
	msg.SenderDeleted = senderDeleted != 0
	msg.RecipientDeleted = recipientDeleted != 0
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + messageFrom + ` WHERE m.id = ?`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

// LoadThreadAndMarkRead marks unread messages from otherID to currentID as
// read and returns the thread between the two members, oldest first.
func (s *SQLiteStore) LoadThreadAndMarkRead(ctx context.Context, currentID, otherID string) ([]*Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE messages SET read_at = ?
		WHERE recipient_id = ? AND sender_id = ? AND read_at IS NULL
	`, formatTime(time.Now()), currentID, otherID)
	if err != nil {
		return nil, fmt.Errorf("marking thread read: %w", err)
	}

	query := `SELECT ` + messageColumns + messageFrom + `
		WHERE (m.recipient_id = ? AND m.recipient_deleted = 0 AND m.sender_id = ?)
		   OR (m.recipient_id = ? AND m.sender_deleted = 0 AND m.sender_id = ?)
		ORDER BY m.sent_at ASC, m.rowid ASC
	`
	rows, err := tx.QueryContext(ctx, query, currentID, otherID, otherID, currentID)
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	messages, err := scanMessages(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing thread read: %w", err)
	}

	if marked, _ := result.RowsAffected(); marked > 0 {
		s.logger.Debug("marked thread read", "member_id", currentID, "other_id", otherID, "count", marked)
	}
	return messages, nil
}

// ListMessages returns one page of a member's inbox or outbox, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, params MessageParams) (*Page[*Message], error) {
	page := params.PageParams.Normalize()

	where := `WHERE m.recipient_id = ? AND m.recipient_deleted = 0`
	if params.Container == ContainerOutbox {
		where = `WHERE m.sender_id = ? AND m.sender_deleted = 0`
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages m `+where, params.MemberID).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting messages: %w", err)
	}

	query := `SELECT ` + messageColumns + messageFrom + where + `
		ORDER BY m.sent_at DESC, m.rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, params.MemberID, page.PageSize, page.Offset())
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return NewPage(messages, total, page), nil
}

// DeleteMessage soft-deletes the message for memberID and removes the row
// once both participants have deleted it.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id, memberID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var senderID, recipientID string
	var senderDeleted, recipientDeleted int
	err = tx.QueryRowContext(ctx, `
		SELECT sender_id, recipient_id, sender_deleted, recipient_deleted
		FROM messages WHERE id = ?
	`, id).Scan(&senderID, &recipientID, &senderDeleted, &recipientDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying message: %w", err)
	}

	if senderID != memberID && recipientID != memberID {
		return ErrForbidden
	}
	if senderID == memberID {
		senderDeleted = 1
	}
	if recipientID == memberID {
		recipientDeleted = 1
	}

	if senderDeleted == 1 && recipientDeleted == 1 {
		_, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET sender_deleted = ?, recipient_deleted = ? WHERE id = ?
		`, senderDeleted, recipientDeleted, id)
	}
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// GetGroup retrieves a group and its mirrored connections.
// Returns ErrNotFound if the group doesn't exist.
func (s *SQLiteStore) GetGroup(ctx context.Context, name string) (*Group, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM groups WHERE name = ?`, name).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, member_id FROM connections
		WHERE group_name = ?
		ORDER BY connection_id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("querying group connections: %w", err)
	}
	defer rows.Close()

	group := &Group{Name: name}
	for rows.Next() {
		var c Connection
		if err := rows.Scan(&c.ID, &c.MemberID); err != nil {
			return nil, fmt.Errorf("scanning connection row: %w", err)
		}
		group.Connections = append(group.Connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating connection rows: %w", err)
	}
	return group, nil
}

// AddGroup creates the group (and any connections it already carries).
// Adding an existing group is not an error.
func (s *SQLiteStore) AddGroup(ctx context.Context, group *Group) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO groups (name) VALUES (?)`, group.Name); err != nil {
		return fmt.Errorf("inserting group: %w", err)
	}
	for _, c := range group.Connections {
		if err := s.AddConnection(ctx, group.Name, c); err != nil {
			return err
		}
	}
	return nil
}

// AddConnection records conn as a member of groupName, moving it from any
// group it was previously in.
func (s *SQLiteStore) AddConnection(ctx context.Context, groupName string, conn Connection) error {
	query := `
		INSERT INTO connections (connection_id, group_name, member_id)
		VALUES (?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			group_name = excluded.group_name,
			member_id = excluded.member_id
	`
	if _, err := s.db.ExecContext(ctx, query, conn.ID, groupName, conn.MemberID); err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

// RemoveConnection deletes a mirrored connection. Unknown IDs are ignored.
func (s *SQLiteStore) RemoveConnection(ctx context.Context, connectionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id = ?`, connectionID); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

// ClearConnections deletes every mirrored connection.
func (s *SQLiteStore) ClearConnections(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM connections`)
	if err != nil {
		return fmt.Errorf("clearing connections: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		s.logger.Info("pruned stale connections", "count", n)
	}
	return nil
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
