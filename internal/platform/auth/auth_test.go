package auth

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/recophone/api/internal/platform/config"
	"github.com/recophone/api/internal/platform/requestctx"
)

var testSecret = []byte(strings.Repeat("k", 32))

func testHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestSessionSecret(t *testing.T) {
	raw := strings.Repeat("x", 32)
	key, err := SessionSecret(config.AdminConfig{AuthSecret: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, string(key))

	key, err = SessionSecret(config.AdminConfig{AuthSecretB64: base64.StdEncoding.EncodeToString([]byte(raw)), AuthSecret: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, raw, string(key))

	key, err = SessionSecret(config.AdminConfig{AuthSecret: "hex:" + hex.EncodeToString([]byte(raw))})
	require.NoError(t, err)
	assert.Equal(t, raw, string(key))

	_, err = SessionSecret(config.AdminConfig{AuthSecret: "short"})
	assert.ErrorIs(t, err, ErrSecretTooShort)
	_, err = SessionSecret(config.AdminConfig{})
	assert.ErrorIs(t, err, ErrSecretMissing)
	_, err = SessionSecret(config.AdminConfig{AuthSecretHex: "zz"})
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	hash := testHash(t, "s3cret!")
	creds, err := NewCredentials(config.AdminConfig{Email: "Admin@RecoPhone.be", PasswordHashB64: base64.StdEncoding.EncodeToString([]byte(hash))})
	require.NoError(t, err)

	admin, err := creds.Verify(" admin@recophone.be ", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, "Admin@RecoPhone.be", admin.Email)
	assert.Equal(t, "Admin", admin.Name)
	assert.Equal(t, RoleAdmin, admin.Role)

	_, err = creds.Verify("admin@recophone.be", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = creds.Verify("other@recophone.be", "s3cret!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestNewCredentials_RejectsNonBcrypt(t *testing.T) {
	_, err := NewCredentials(config.AdminConfig{Email: "a@b.be", PasswordHash: "plaintext"})
	assert.ErrorIs(t, err, ErrInvalidPasswordHash)
}

func TestSessions_IssueVerify(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	sessions, err := NewSessions(testSecret, time.Hour, func() time.Time { return clock })
	require.NoError(t, err)

	token, expires, err := sessions.Issue(Admin{Email: "admin@recophone.be", Name: "Admin"})
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expires)

	admin, err := sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@recophone.be", admin.Email)

	clock = now.Add(2 * time.Hour)
	_, err = sessions.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_RejectsForgedAndWrongAlg(t *testing.T) {
	sessions, err := NewSessions(testSecret, time.Hour, nil)
	require.NoError(t, err)

	other, err := NewSessions([]byte(strings.Repeat("z", 32)), time.Hour, nil)
	require.NoError(t, err)
	forged, _, err := other.Issue(Admin{Email: "admin@recophone.be"})
	require.NoError(t, err)
	_, err = sessions.Verify(forged)
	assert.ErrorIs(t, err, ErrInvalidSession)

	claims := SessionClaims{Role: RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "admin@recophone.be",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = sessions.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = NewSessions([]byte("short"), time.Hour, nil)
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestRequireAdmin(t *testing.T) {
	sessions, err := NewSessions(testSecret, time.Hour, nil)
	require.NoError(t, err)
	cookies := Cookies{Name: "rp_session"}
	token, _, err := sessions.Issue(Admin{Email: "admin@recophone.be", Name: "Admin"})
	require.NoError(t, err)

	var seen Admin
	handler := RequireAdmin(sessions, cookies)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = AdminFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/admin/documents", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	ctx := requestctx.WithSubjectSlot(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/documents", nil).WithContext(ctx)
	req.AddCookie(&http.Cookie{Name: "rp_session", Value: token})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "admin@recophone.be", seen.Email)
	assert.Equal(t, "admin@recophone.be", requestctx.Subject(ctx))
}

func TestCookies(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Cookies{Name: "rp_session", Secure: true}
	rr := httptest.NewRecorder()
	c.Set(rr, "tok", now.Add(7*24*time.Hour), now)
	header := rr.Header().Get("Set-Cookie")
	assert.Contains(t, header, "rp_session=tok")
	assert.Contains(t, header, "HttpOnly")
	assert.Contains(t, header, "Secure")
	assert.Contains(t, header, "SameSite=Lax")
	assert.Contains(t, header, "Max-Age=604800")

	rr = httptest.NewRecorder()
	c.Clear(rr)
	assert.Contains(t, rr.Header().Get("Set-Cookie"), "Max-Age=0")
}
