package discussion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iach526526/pastexam/internal/sqlinline"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	return assignValues(dest, r.values)
}

type stubRows struct {
	rows [][]any
	idx  int
}

func (r *stubRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...interface{}) error {
	return assignValues(dest, r.rows[r.idx-1])
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func assignValues(dest, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubSQL struct {
	rows     map[string][][]any
	singles  map[string]stubRow
	execTags map[string]pgconn.CommandTag
	execs    []string
}

func (s *stubSQL) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, query)
	return s.execTags[query], nil
}

func (s *stubSQL) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	row, ok := s.singles[query]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return row
}

func (s *stubSQL) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return &stubRows{rows: s.rows[query]}, nil
}

func TestPostRejectsEmptyAndBlank(t *testing.T) {
	svc := NewService(&stubSQL{})
	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Post(context.Background(), 1, 1, content); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("Post(%q) err = %v, want ErrEmptyMessage", content, err)
		}
	}
}

func TestPostCountsRunesNotBytes(t *testing.T) {
	now := time.Now()
	svc := NewService(&stubSQL{singles: map[string]stubRow{
		sqlinline.QSelectUserDisplayName:   {values: []any{"Alice", ""}},
		sqlinline.QInsertDiscussionMessage: {values: []any{int64(1), now}},
	}})

	// 200 CJK runes is within the limit even though it is 600 bytes.
	ok := strings.Repeat("字", 200)
	msg, err := svc.Post(context.Background(), 3, 7, ok)
	if err != nil {
		t.Fatalf("Post 200 runes: %v", err)
	}
	if msg.UserName != "Alice" || msg.ArchiveID != 3 || msg.UserID != 7 {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if _, err := svc.Post(context.Background(), 3, 7, ok+"字"); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("Post 201 runes err = %v, want ErrMessageTooLong", err)
	}
}

func TestPostPrefersNickname(t *testing.T) {
	now := time.Now()
	svc := NewService(&stubSQL{singles: map[string]stubRow{
		sqlinline.QSelectUserDisplayName:   {values: []any{"Alice", "小艾"}},
		sqlinline.QInsertDiscussionMessage: {values: []any{int64(2), now}},
	}})

	msg, err := svc.Post(context.Background(), 1, 1, "hello")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if msg.UserName != "小艾" {
		t.Fatalf("UserName = %q, want 小艾", msg.UserName)
	}
}

func TestHistoryReversesToChronological(t *testing.T) {
	now := time.Now()
	svc := NewService(&stubSQL{rows: map[string][][]any{
		sqlinline.QListDiscussionMessages: {
			{int64(3), int64(1), int64(5), "third", now, "Bob", ""},
			{int64(2), int64(1), int64(5), "second", now.Add(-time.Minute), "Bob", ""},
			{int64(1), int64(1), int64(5), "first", now.Add(-2 * time.Minute), "Bob", ""},
		},
	}})

	msgs, err := svc.History(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[0].ID != 1 || msgs[2].ID != 3 {
		t.Fatalf("order = [%d %d %d], want chronological", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
}

func TestDeleteOwnership(t *testing.T) {
	tests := []struct {
		name    string
		row     stubRow
		userID  int64
		isAdmin bool
		wantErr error
	}{
		{"missing", stubRow{err: pgx.ErrNoRows}, 1, false, ErrNotFound},
		{"already deleted", stubRow{values: []any{int64(9), int64(4), int64(1), true}}, 1, false, ErrNotFound},
		{"foreign user", stubRow{values: []any{int64(9), int64(4), int64(2), false}}, 1, false, ErrForbidden},
		{"owner", stubRow{values: []any{int64(9), int64(4), int64(1), false}}, 1, false, nil},
		{"admin", stubRow{values: []any{int64(9), int64(4), int64(2), false}}, 1, true, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sql := &stubSQL{
				singles:  map[string]stubRow{sqlinline.QSelectDiscussionMessage: tc.row},
				execTags: map[string]pgconn.CommandTag{sqlinline.QSoftDeleteDiscussionMessage: pgconn.NewCommandTag("UPDATE 1")},
			}
			svc := NewService(sql)

			archiveID, err := svc.Delete(context.Background(), 9, tc.userID, tc.isAdmin)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Delete err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if archiveID != 4 {
				t.Fatalf("archiveID = %d, want 4", archiveID)
			}
			if len(sql.execs) != 1 {
				t.Fatalf("execs = %d, want 1", len(sql.execs))
			}
		})
	}
}
