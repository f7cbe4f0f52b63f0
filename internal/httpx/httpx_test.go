package httpx

import (
	"net/url"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	if err := DecodeJSON(strings.NewReader(`{"name":"ok"}`), &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.Name != "ok" {
		t.Fatalf("got %q", dst.Name)
	}

	if err := DecodeJSON(strings.NewReader(`{"name":"ok","extra":1}`), &dst); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := DecodeJSON(strings.NewReader(`{"name":"ok"}{"name":"again"}`), &dst); err == nil {
		t.Error("expected error for trailing data")
	}
	if err := DecodeJSON(strings.NewReader(`not json`), &dst); err == nil {
		t.Error("expected error for invalid json")
	}
}

func TestParseLimitOffset(t *testing.T) {
	q := url.Values{}
	limit, offset, err := ParseLimitOffset(q, 50, 200)
	if err != nil || limit != 50 || offset != 0 {
		t.Fatalf("defaults: got %d, %d, %v", limit, offset, err)
	}

	q.Set("limit", "500")
	q.Set("offset", "10")
	limit, offset, err = ParseLimitOffset(q, 50, 200)
	if err != nil || limit != 200 || offset != 10 {
		t.Fatalf("clamped: got %d, %d, %v", limit, offset, err)
	}

	q.Set("limit", "0")
	if _, _, err := ParseLimitOffset(q, 50, 200); err == nil {
		t.Error("expected error for zero limit")
	}

	q.Set("limit", "10")
	q.Set("offset", "-1")
	if _, _, err := ParseLimitOffset(q, 50, 200); err == nil {
		t.Error("expected error for negative offset")
	}
}
