package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zachkp/stats-consult/internal/errors"
)

// Message is a contact-form submission.
type Message struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Body      string    `json:"message"`
	Read      bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageInput is what a visitor submits.
type MessageInput struct {
	Name    string `form:"name" validate:"required,max=100"`
	Email   string `form:"email" validate:"required,max=255,email"`
	Message string `form:"message" validate:"required,max=1000"`
}

// MessageStore is the data-access contract for contact messages.
type MessageStore interface {
	ListMessages(ctx context.Context) ([]Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	CreateMessage(ctx context.Context, in MessageInput) (*Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	DeleteMessage(ctx context.Context, id string) error
	DeleteMessages(ctx context.Context, ids []string) (int64, error)
	UnreadCount(ctx context.Context) (int64, error)
}

// Normalize trims and validates a submission.
func (in *MessageInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Message = strings.TrimSpace(in.Message)
	return validateStruct(in)
}

const messageColumns = `id, name, email, message, is_read, created_at`

// ListMessages returns every message, newest first.
func (s *Store) ListMessages(ctx context.Context) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (s *Store) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("message", id)
	}
	return m, err
}

// CreateMessage stores a validated submission as unread.
func (s *Store) CreateMessage(ctx context.Context, in MessageInput) (*Message, error) {
	if err := in.Normalize(); err != nil {
		return nil, err
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID:        id,
		Name:      in.Name,
		Email:     in.Email,
		Body:      in.Message,
		CreatedAt: time.Unix(s.now().Unix(), 0).UTC(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, 0, ?)`,
		m.ID, m.Name, m.Email, m.Body, m.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return m, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("message", id)
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("message", id)
	}
	return nil
}

// DeleteMessages removes every listed message in one transaction and returns
// how many existed. Unknown IDs are skipped.
func (s *Store) DeleteMessages(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bulk delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM messages WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bulk delete: %w", err)
	}
	defer stmt.Close()

	var total int64
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete message %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk delete: %w", err)
	}
	return total, nil
}

func (s *Store) UnreadCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE is_read = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		m       Message
		read    int
		created int64
	)
	if err := row.Scan(&m.ID, &m.Name, &m.Email, &m.Body, &read, &created); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	m.Read = read != 0
	m.CreatedAt = time.Unix(created, 0).UTC()
	return &m, nil
}
