package discussion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iach526526/pastexam/internal/infra"
	"github.com/iach526526/pastexam/internal/sqlinline"
)

// MaxMessageLength bounds a discussion message, counted in runes so CJK text
// gets the same budget as ASCII.
const MaxMessageLength = 200

const defaultHistoryLimit = 50

var (
	ErrEmptyMessage   = errors.New("empty message")
	ErrMessageTooLong = errors.New("message too long")
	ErrNotFound       = errors.New("message not found")
	ErrForbidden      = errors.New("not message owner")
)

// Message is one discussion entry as sent to clients.
type Message struct {
	ID        int64     `json:"id"`
	ArchiveID int64     `json:"archive_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Service persists discussion messages and enforces the posting rules.
type Service struct {
	sql infra.SQLExecutor
}

func NewService(sql infra.SQLExecutor) *Service {
	return &Service{sql: sql}
}

// ArchiveExists reports whether the archive id refers to a real archive.
func (s *Service) ArchiveExists(ctx context.Context, archiveID int64) (bool, error) {
	var exists bool
	if err := s.sql.QueryRow(ctx, sqlinline.QArchiveExists, archiveID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check archive: %w", err)
	}
	return exists, nil
}

// History returns up to limit messages older than beforeID, oldest first.
// beforeID zero means newest messages.
func (s *Service) History(ctx context.Context, archiveID, beforeID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.sql.Query(ctx, sqlinline.QListDiscussionMessages, archiveID, beforeID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var name, nickname string
		if err := rows.Scan(&m.ID, &m.ArchiveID, &m.UserID, &m.Content, &m.CreatedAt, &name, &nickname); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.UserName = DisplayName(name, nickname)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// The query returns newest first; clients want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Post validates and persists a message. The sender's display name is
// resolved fresh so nickname changes show up immediately.
func (s *Service) Post(ctx context.Context, archiveID, userID int64, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	var name, nickname string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectUserDisplayName, userID).Scan(&name, &nickname); err != nil {
		return nil, fmt.Errorf("resolve sender: %w", err)
	}

	m := &Message{
		ArchiveID: archiveID,
		UserID:    userID,
		UserName:  DisplayName(name, nickname),
		Content:   content,
	}
	if err := s.sql.QueryRow(ctx, sqlinline.QInsertDiscussionMessage, archiveID, userID, content).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// Delete soft-deletes a message. Only the author or an admin may delete.
// It returns the archive id so callers can broadcast the removal.
func (s *Service) Delete(ctx context.Context, messageID, userID int64, isAdmin bool) (int64, error) {
	var (
		id, archiveID, authorID int64
		deleted                 bool
	)
	err := s.sql.QueryRow(ctx, sqlinline.QSelectDiscussionMessage, messageID).Scan(&id, &archiveID, &authorID, &deleted)
	if infra.IsNoRows(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("load message: %w", err)
	}
	if deleted {
		return 0, ErrNotFound
	}
	if authorID != userID && !isAdmin {
		return 0, ErrForbidden
	}

	if _, err := s.sql.Exec(ctx, sqlinline.QSoftDeleteDiscussionMessage, messageID); err != nil {
		return 0, fmt.Errorf("delete message: %w", err)
	}
	return archiveID, nil
}

// DisplayName prefers a non-blank nickname over the account name.
func DisplayName(name, nickname string) string {
	if trimmed := strings.TrimSpace(nickname); trimmed != "" {
		return trimmed
	}
	return name
}
