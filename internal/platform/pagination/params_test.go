package pagination

import (
	"encoding/base64"
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestParseDefaultsAndCaps(t *testing.T) {
	params, err := Parse(url.Values{})
	if err != nil || params.PageSize != DefaultPageSize || !params.Cursor.IsZero() {
		t.Fatalf("unexpected defaults %+v %v", params, err)
	}

	params, err = Parse(url.Values{"pageSize": {"500"}})
	if err != nil || params.PageSize != DefaultMaxPageSize {
		t.Fatalf("expected cap at %d, got %+v %v", DefaultMaxPageSize, params, err)
	}

	if _, err := Parse(url.Values{"pageSize": {"-1"}}); !errors.Is(err, ErrInvalidPageSize) {
		t.Fatalf("expected ErrInvalidPageSize, got %v", err)
	}
}

func TestTokenRoundTripThroughParse(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), ID: "01HXYZ"}
	token, err := EncodeToken(cursor)
	if err != nil || token == "" {
		t.Fatalf("encode: %q %v", token, err)
	}
	params, err := Parse(url.Values{"pageToken": {token}, "pageSize": {"10"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if params.Cursor.ID != "01HXYZ" || !params.Cursor.CreatedAt.Equal(cursor.CreatedAt) {
		t.Fatalf("unexpected cursor %+v", params.Cursor)
	}

	if _, err := Parse(url.Values{"pageToken": {"%%%"}}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestDecodeTokenRejectsMalformed(t *testing.T) {
	for _, token := range []string{
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("abc~01HXYZ")),
		base64.RawURLEncoding.EncodeToString([]byte("1700000000~")),
	} {
		if _, err := DecodeToken(token); !errors.Is(err, ErrInvalidPageToken) {
			t.Fatalf("token %q: expected ErrInvalidPageToken, got %v", token, err)
		}
	}
	if _, err := EncodeToken(Cursor{ID: "a~b", CreatedAt: time.Now()}); err == nil {
		t.Fatalf("expected error for id containing the separator")
	}
}
