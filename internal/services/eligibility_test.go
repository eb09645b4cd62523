package services

import (
	"testing"

	"github.com/recophone/api/internal/domain"
)

func TestEvaluateEligibility(t *testing.T) {
	cases := []struct {
		name    string
		devices []Device
		want    bool
	}{
		{"empty", nil, false},
		{"apple screen", []Device{{Brand: domain.BrandApple, Items: []SelectedItem{{Label: "Écran"}}}}, false},
		{"apple back by part kind", []Device{{Brand: domain.BrandApple, Items: []SelectedItem{
			{Label: "Vitre", Meta: &domain.ItemMeta{PartKind: domain.PartKindBack}},
		}}}, true},
		{"apple frame by label", []Device{{Brand: domain.BrandApple, Items: []SelectedItem{{Label: "Remplacement Châssis"}}}}, true},
		{"apple back glass label", []Device{{Brand: domain.BrandApple, Items: []SelectedItem{{Label: "Back Glass"}}}}, true},
		{"samsung back", []Device{{Brand: domain.BrandSamsung, Items: []SelectedItem{
			{Label: "Face arrière", Meta: &domain.ItemMeta{PartKind: domain.PartKindBack}},
		}}}, false},
		{"second device apple frame", []Device{
			{Brand: domain.BrandXiaomi, Items: []SelectedItem{{Label: "Batterie"}}},
			{Brand: domain.BrandApple, Items: []SelectedItem{{Label: "Châssis", Meta: &domain.ItemMeta{PartKind: domain.PartKindFrame}}}},
		}, true},
	}
	for _, tc := range cases {
		got := EvaluateEligibility(tc.devices)
		if got.Forbidden != tc.want {
			t.Fatalf("%s: forbidden = %v, want %v", tc.name, got.Forbidden, tc.want)
		}
		if tc.want && got.Reason != AtHomeForbiddenReason {
			t.Fatalf("%s: unexpected reason %q", tc.name, got.Reason)
		}
		if !tc.want && got.Reason != "" {
			t.Fatalf("%s: reason must be empty, got %q", tc.name, got.Reason)
		}
	}
}
