package services

import (
	"strings"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/textutil"
)

// AtHomeForbiddenReason explains why an at-home visit is refused.
const AtHomeForbiddenReason = "Les réparations châssis / face arrière sur appareils Apple se font uniquement en atelier."

// Eligibility is the at-home verdict for the current selection.
type Eligibility struct {
	Forbidden bool   `json:"forbidden"`
	Reason    string `json:"reason,omitempty"`
}

var housingLabelMarkers = []string{"chassis", "face arriere", "back glass"}

// EvaluateEligibility forbids at-home visits when an Apple device needs a back or frame repair.
func EvaluateEligibility(devices []Device) Eligibility {
	for _, device := range devices {
		if device.Brand != domain.BrandApple {
			continue
		}
		for _, item := range device.Items {
			if isHousingRepair(item) {
				return Eligibility{Forbidden: true, Reason: AtHomeForbiddenReason}
			}
		}
	}
	return Eligibility{}
}

func isHousingRepair(item SelectedItem) bool {
	if item.Meta != nil && item.Meta.PartKind != "" {
		return item.Meta.PartKind == domain.PartKindBack || item.Meta.PartKind == domain.PartKindFrame
	}
	label := textutil.Fold(item.Label)
	for _, marker := range housingLabelMarkers {
		if strings.Contains(label, marker) {
			return true
		}
	}
	return false
}
