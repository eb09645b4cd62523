package gormrepo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/recophone/api/internal/platform/database"
	"github.com/recophone/api/internal/repositories"
)

type txKey struct{}

// Registry wires every gorm repository on one connection.
type Registry struct {
	db            *gorm.DB
	quotes        *QuoteRepository
	counters      *CounterRepository
	webhookEvents *WebhookEventRepository
	subscriptions *SubscriptionRepository
	payments      *CheckoutPaymentRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the repositories on db. The schema must already exist.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("gormrepo: db is required")
	}
	return &Registry{
		db:            db,
		quotes:        &QuoteRepository{db: db},
		counters:      &CounterRepository{db: db},
		webhookEvents: &WebhookEventRepository{db: db},
		subscriptions: &SubscriptionRepository{db: db},
		payments:      &CheckoutPaymentRepository{db: db},
	}, nil
}

func (r *Registry) Quotes() repositories.QuoteRepository                     { return r.quotes }
func (r *Registry) Counters() repositories.CounterRepository                 { return r.counters }
func (r *Registry) WebhookEvents() repositories.WebhookEventRepository       { return r.webhookEvents }
func (r *Registry) Subscriptions() repositories.SubscriptionRepository       { return r.subscriptions }
func (r *Registry) CheckoutPayments() repositories.CheckoutPaymentRepository { return r.payments }

// Ping checks the underlying connection.
func (r *Registry) Ping(ctx context.Context) error {
	return database.Ping(ctx, r.db)
}

// Close releases the connection pool.
func (r *Registry) Close(context.Context) error {
	return database.Close(r.db)
}

// RunInTx runs fn in a transaction. Repositories called with the ctx passed to fn join it.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return errors.New("gormrepo: transaction function is nil")
	}
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction carried by ctx, or db bound to ctx.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
