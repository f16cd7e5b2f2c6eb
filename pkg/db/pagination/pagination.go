package pagination

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

const (
	DefaultLimit = 50
	MaxLimit     = 250
)

// Pagination carries caller-supplied cursor paging parameters.
type Pagination struct {
	Cursor string `form:"cursor"`
	Limit  int    `form:"limit" validate:"gte=0,lte=250"`
}

// Bound normalizes the limit into [1, MaxLimit].
func (p Pagination) Bound() int {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	default:
		return p.Limit
	}
}

// Cursor pins a position in a (created_at, id) ordered scan. Both fields are
// needed: created_at alone is not unique.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

type PageInfo struct {
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

func EncodeCursor(c Cursor) string {
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// BuildPageInfo trims an over-fetched page (limit+1 rows) back to limit and
// reports whether more rows follow. extract produces the cursor of a row.
func BuildPageInfo[T any](rows []*T, limit int, extract func(*T) Cursor) ([]*T, *PageInfo) {
	if len(rows) == 0 {
		return rows, &PageInfo{}
	}

	info := &PageInfo{}
	if len(rows) > limit {
		info.HasMore = true
		rows = rows[:limit]
	}
	info.NextCursor = EncodeCursor(extract(rows[len(rows)-1]))

	return rows, info
}
