package gormrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/recophone/api/internal/repositories"
)

// CounterRepository implements repositories.CounterRepository with row-locked increments.
type CounterRepository struct {
	db    *gorm.DB
	clock func() time.Time
}

func (r *CounterRepository) now() time.Time {
	if r.clock != nil {
		return r.clock().UTC()
	}
	return time.Now().UTC()
}

// splitCounterID maps "scope:name" onto the composite key. IDs without a scope use "default".
func splitCounterID(counterID string) (string, string, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return "", "", repositories.InvalidCounter("", "id is required")
	}
	scope, name, found := strings.Cut(id, ":")
	if !found {
		return "default", id, nil
	}
	scope, name = strings.TrimSpace(scope), strings.TrimSpace(name)
	if scope == "" || name == "" {
		return "", "", repositories.InvalidCounter(counterID, "expected scope:name")
	}
	return scope, name, nil
}

// Next atomically increments the counter and returns the new value. A missing counter starts at step.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("counter repository not initialised")
	}
	scope, name, err := splitCounterID(counterID)
	if err != nil {
		return 0, err
	}
	if step < 0 {
		return 0, repositories.InvalidCounter(counterID, fmt.Sprintf("negative step %d", step))
	}

	now := r.now()
	var next int64
	err = conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var row CounterModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope = ? AND name = ?", scope, name).
			Take(&row).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			increment := step
			if increment <= 0 {
				increment = 1
			}
			row = CounterModel{Scope: scope, Name: name, Value: increment, Step: increment, UpdatedAt: now}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			next = row.Value
			return nil
		case err != nil:
			return err
		}

		increment := step
		if increment <= 0 {
			increment = max(row.Step, 1)
		}
		value := row.Value + increment
		if row.MaxValue != nil && value > *row.MaxValue {
			return repositories.ExhaustedCounter(scope+":"+name, *row.MaxValue)
		}
		if err := tx.Model(&CounterModel{}).
			Where("scope = ? AND name = ?", scope, name).
			Updates(map[string]any{"value": value, "updated_at": now}).Error; err != nil {
			return err
		}
		next = value
		return nil
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			return 0, counterErr
		}
		return 0, wrapError("counters.next", err)
	}
	return next, nil
}

// Configure sets the step and max value. InitialValue only seeds a counter that does not exist yet.
func (r *CounterRepository) Configure(ctx context.Context, counterID string, cfg repositories.CounterConfig) error {
	if r == nil || r.db == nil {
		return errors.New("counter repository not initialised")
	}
	scope, name, err := splitCounterID(counterID)
	if err != nil {
		return err
	}
	if cfg.Step < 0 {
		return repositories.InvalidCounter(counterID, "negative step")
	}

	now := r.now()
	err = conn(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var row CounterModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope = ? AND name = ?", scope, name).
			Take(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = CounterModel{Scope: scope, Name: name, Step: 1, MaxValue: cfg.MaxValue, UpdatedAt: now}
			if cfg.Step > 0 {
				row.Step = cfg.Step
			}
			if cfg.InitialValue != nil {
				row.Value = *cfg.InitialValue
			}
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		updates := map[string]any{"updated_at": now}
		if cfg.Step > 0 {
			updates["step"] = cfg.Step
		}
		if cfg.MaxValue != nil {
			updates["max_value"] = *cfg.MaxValue
		}
		return tx.Model(&CounterModel{}).Where("scope = ? AND name = ?", scope, name).Updates(updates).Error
	})
	return wrapError("counters.configure", err)
}
