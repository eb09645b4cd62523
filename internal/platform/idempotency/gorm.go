package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KeyModel is the idempotency_keys table.
type KeyModel struct {
	ID              string `gorm:"primaryKey;size:64"`
	Key             string `gorm:"size:512;not null"`
	Fingerprint     string `gorm:"size:64;not null"`
	Status          string `gorm:"size:16;not null"`
	ResponseStatus  int
	ResponseHeaders []byte
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time `gorm:"index"`
}

// TableName implements gorm's tabler.
func (KeyModel) TableName() string { return "idempotency_keys" }

// GormStore implements Store on a relational database.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db. The idempotency_keys table must exist (see KeyModel).
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Reserve implements Store. The insert-or-read runs in one transaction with a row lock where supported.
func (s *GormStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	id := keyDigest(key)

	var result Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row KeyModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !now.Before(row.ExpiresAt)):
			row = KeyModel{
				ID:          id,
				Key:         key,
				Fingerprint: fingerprint,
				Status:      string(StatusPending),
				CreatedAt:   now,
				UpdatedAt:   now,
				ExpiresAt:   now.Add(ttl),
			}
			if err := tx.Save(&row).Error; err != nil {
				return err
			}
			result = Reservation{Outcome: OutcomeFresh, Record: row.record()}
			return nil
		case err != nil:
			return err
		}
		var rerr error
		result, rerr = reservationFor(row.record(), fingerprint)
		return rerr
	})
	if err != nil {
		if errors.Is(err, ErrFingerprintMismatch) {
			return Reservation{}, err
		}
		return Reservation{}, fmt.Errorf("idempotency: reserve: %w", err)
	}
	return result, nil
}

// SaveResponse implements Store.
func (s *GormStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	headers, err := json.Marshal(replayableHeaders(resp.Headers))
	if err != nil {
		return fmt.Errorf("idempotency: encode headers: %w", err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row KeyModel
		err := tx.Where("id = ?", keyDigest(key)).Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			row = KeyModel{ID: keyDigest(key), Key: key, Fingerprint: fingerprint, CreatedAt: now}
		case err != nil:
			return fmt.Errorf("idempotency: load: %w", err)
		case row.Fingerprint != fingerprint:
			return ErrFingerprintMismatch
		}
		row.Status = string(StatusCompleted)
		row.ResponseStatus = resp.Status
		row.ResponseHeaders = headers
		row.ResponseBody = resp.Body
		row.UpdatedAt = now
		row.ExpiresAt = now.Add(ttl)
		return tx.Save(&row).Error
	})
}

// Release implements Store.
func (s *GormStore) Release(ctx context.Context, key, _ string) error {
	return s.db.WithContext(ctx).Where("id = ?", keyDigest(key)).Delete(&KeyModel{}).Error
}

// CleanupExpired implements Store.
func (s *GormStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	var ids []string
	db := s.db.WithContext(ctx)
	if err := db.Model(&KeyModel{}).Where("expires_at <= ?", now.UTC()).Limit(limit).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("idempotency: list expired: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.Where("id IN ?", ids).Delete(&KeyModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("idempotency: delete expired: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (m KeyModel) record() Record {
	var headers map[string][]string
	if len(m.ResponseHeaders) > 0 {
		_ = json.Unmarshal(m.ResponseHeaders, &headers)
	}
	return Record{
		Key:             m.Key,
		Fingerprint:     m.Fingerprint,
		Status:          Status(m.Status),
		ResponseStatus:  m.ResponseStatus,
		ResponseHeaders: headers,
		ResponseBody:    m.ResponseBody,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		ExpiresAt:       m.ExpiresAt,
	}
}
