package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// CompanyInfo identifies the shop on generated documents.
type CompanyInfo struct {
	Name    string `json:"name"`
	Slogan  string `json:"slogan,omitempty"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
	VAT     string `json:"vat,omitempty"`
}

// RecoPhone returns the company block printed on quotes and contracts.
func RecoPhone() CompanyInfo {
	return CompanyInfo{
		Name:    "RecoPhone",
		Slogan:  "Réparation de smartphones",
		Email:   "hello@recophone.be",
		Phone:   "+32/492.09.05.33",
		Website: "recophone.be",
		Address: "Rte de Saussin 38/23a, 5190 Jemeppe-sur-Sambre, Belgique",
		VAT:     "BE06 95 86 62 21",
	}
}
