package textutil

import "testing"

func TestSlugifyUpper(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Dupont", "DUPONT"},
		{"  Lefèvre-Élise ", "LEFEVRE_ELISE"},
		{"O'Brien  Smith", "O_BRIEN_SMITH"},
		{"___", ""},
		{"Ærø", "R"},
	}
	for _, tc := range cases {
		if got := SlugifyUpper(tc.in); got != tc.want {
			t.Errorf("SlugifyUpper(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFoldAndCollapse(t *testing.T) {
	if got := Fold("Face Arrière"); got != "face arriere" {
		t.Fatalf("unexpected fold %q", got)
	}
	if got := CollapseSpaces("  Rue   de  la Gare\t12 "); got != "Rue de la Gare 12" {
		t.Fatalf("unexpected collapse %q", got)
	}
	if got := Truncate("éléphant", 3); got != "élé" {
		t.Fatalf("unexpected truncate %q", got)
	}
}
