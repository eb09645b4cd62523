package auth

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/recophone/api/internal/platform/config"
)

// MinSecretBytes is the minimum HS256 key length.
const MinSecretBytes = 32

var (
	// ErrSecretMissing is returned when no session secret is configured.
	ErrSecretMissing = errors.New("auth: session secret missing")
	// ErrSecretTooShort is returned for keys under MinSecretBytes.
	ErrSecretTooShort = errors.New("auth: session secret shorter than 32 bytes")
)

// SessionSecret picks the signing key: AUTH_SECRET_B64, then AUTH_SECRET_HEX, then AUTH_SECRET.
// AUTH_SECRET also accepts "base64:" and "hex:" prefixes.
func SessionSecret(cfg config.AdminConfig) ([]byte, error) {
	switch {
	case cfg.AuthSecretB64 != "":
		return decodeSecret("base64:" + cfg.AuthSecretB64)
	case cfg.AuthSecretHex != "":
		return decodeSecret("hex:" + cfg.AuthSecretHex)
	default:
		return decodeSecret(cfg.AuthSecret)
	}
}

func decodeSecret(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	var (
		key []byte
		err error
	)
	switch {
	case strings.HasPrefix(raw, "base64:"):
		key, err = base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, "base64:"))
		if err != nil {
			return nil, fmt.Errorf("auth: decode base64 secret: %w", err)
		}
	case strings.HasPrefix(raw, "hex:"):
		key, err = hex.DecodeString(strings.TrimPrefix(raw, "hex:"))
		if err != nil {
			return nil, fmt.Errorf("auth: decode hex secret: %w", err)
		}
	default:
		key = []byte(raw)
	}
	if len(key) < MinSecretBytes {
		return nil, ErrSecretTooShort
	}
	return key, nil
}
