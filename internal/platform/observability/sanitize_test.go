package observability

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                    "",
		"jane@example.com":    "j***@example.com",
		"élodie@recophone.be": "é***@recophone.be",
		"not-an-email":        "***",
		"@nolocal.be":         "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeStringDropsControlCharacters(t *testing.T) {
	got := sanitizeString("GET\r\n/evil\x00", 0)
	if got != "GET/evil" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeMethod("VERYLONGMETHODNAME"); got != "VERYLONGME" {
		t.Fatalf("expected method capped at 10 runes, got %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected empty route to become /, got %q", got)
	}
}
