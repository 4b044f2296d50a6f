package pagination

import (
	"encoding/base64"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
)

type Pagination struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10" validate:"gte=1,lte=250"` // Min 1, Max 250
}

type Cursor struct {
	ID        string `json:"id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type PageInfo struct {
	NextPageToken string `json:"next_page_token"`
	HasMore       bool   `json:"has_more"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 250
)

// NormalizePageSize clamps a requested page size to the supported range.
func NormalizePageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// CursorID returns the id encoded in a page token. An empty token yields 0.
func CursorID(token string) (snowflake.ID, error) {
	if token == "" {
		return 0, nil
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		return 0, err
	}
	return snowflake.ParseString(cursor.ID)
}

// IDToken encodes a cursor pointing at the given id.
func IDToken(id snowflake.ID) string {
	token, err := EncodeCursor(Cursor{ID: id.String()})
	if err != nil {
		return ""
	}
	return token
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}

// BuildCursorPageInfo inspects a page fetched with one lookahead row. The next
// token points at the last row that is returned to the caller.
func BuildCursorPageInfo[T any](data []*T, limit int32, extractCursor func(*T) string) *PageInfo {
	if len(data) == 0 {
		return &PageInfo{HasMore: false}
	}

	hasMore := false
	if len(data) > int(limit) {
		hasMore = true
		data = data[:limit]
	}

	pageInfo := &PageInfo{HasMore: hasMore}
	if hasMore {
		pageInfo.NextPageToken = extractCursor(data[len(data)-1])
	}

	return pageInfo
}

// Trim drops the lookahead row from a page.
func Trim[T any](data []*T, limit int32) []*T {
	if limit > 0 && len(data) > int(limit) {
		return data[:limit]
	}
	return data
}
