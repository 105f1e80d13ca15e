// Package pagination implements keyset cursors over (created_at, id), newest
// first. Cursors are opaque to clients and safe to put in a query string.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the position of the last row of a page. The next page holds rows
// strictly older than it, with ID breaking ties on equal timestamps.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// Encode renders c as "<unix nanos>:<id>" in unpadded URL-safe base64.
func Encode(c Cursor) string {
	if c.ID == "" {
		return ""
	}
	raw := strconv.FormatInt(c.CreatedAt.UnixNano(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor produced by Encode. The empty string means "first
// page" and yields nil.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// Paginate turns rows fetched with limit+1 into a page. The extra row only
// signals that another page exists and is dropped.
func Paginate[T any](rows []T, limit int, key func(T) Cursor) Page[T] {
	if limit <= 0 || len(rows) <= limit {
		return Page[T]{Items: rows}
	}
	items := rows[:limit]
	return Page[T]{
		Items:   items,
		Cursor:  Encode(key(items[len(items)-1])),
		HasMore: true,
	}
}
