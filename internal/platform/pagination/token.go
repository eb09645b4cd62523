package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const tokenSeparator = "~"

// EncodeToken turns cursor into an opaque page token of the form base64url("<unix nanos>~<id>").
// The first page has no token.
func EncodeToken(cursor Cursor) (string, error) {
	if cursor.IsZero() {
		return "", nil
	}
	if cursor.ID == "" || strings.Contains(cursor.ID, tokenSeparator) {
		return "", fmt.Errorf("pagination: cursor id %q cannot be encoded", cursor.ID)
	}
	raw := strconv.FormatInt(cursor.CreatedAt.UnixNano(), 10) + tokenSeparator + cursor.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// DecodeToken parses a token produced by EncodeToken. A blank token is the first page.
func DecodeToken(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not base64url", ErrInvalidPageToken)
	}
	nanos, id, ok := strings.Cut(string(raw), tokenSeparator)
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: malformed", ErrInvalidPageToken)
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: bad timestamp", ErrInvalidPageToken)
	}
	return Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}
