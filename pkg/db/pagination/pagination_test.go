package pagination

import (
	"strconv"
	"testing"
)

type row struct {
	id int
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "42" {
		t.Fatalf("expected id 42, got %q", cursor.ID)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	if _, err := DecodeCursor("%%%"); err == nil {
		t.Fatalf("expected error for invalid token")
	}
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{id: 5}, {id: 4}, {id: 3}}
	extract := func(r *row) string { return strconv.Itoa(r.id) }

	info := BuildCursorPageInfo(rows, 2, extract)
	if !info.HasMore {
		t.Fatalf("expected has_more with lookahead row")
	}
	if info.NextPageToken != "4" {
		t.Fatalf("expected next token at last returned row, got %q", info.NextPageToken)
	}
	if got := Trim(rows, 2); len(got) != 2 {
		t.Fatalf("expected trimmed page of 2, got %d", len(got))
	}

	last := BuildCursorPageInfo(rows, 3, extract)
	if last.HasMore || last.NextPageToken != "" {
		t.Fatalf("expected final page without token, got %+v", last)
	}
}

func TestNormalizePageSize(t *testing.T) {
	cases := map[int]int{0: DefaultPageSize, -3: DefaultPageSize, 10: 10, 1000: MaxPageSize}
	for in, want := range cases {
		if got := NormalizePageSize(in); got != want {
			t.Fatalf("NormalizePageSize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestCursorIDFromToken(t *testing.T) {
	id, err := CursorID(IDToken(1234567))
	if err != nil {
		t.Fatalf("cursor id: %v", err)
	}
	if id != 1234567 {
		t.Fatalf("expected 1234567, got %d", id)
	}
	if id, err := CursorID(""); err != nil || id != 0 {
		t.Fatalf("expected empty token to yield 0, got %d %v", id, err)
	}
}
