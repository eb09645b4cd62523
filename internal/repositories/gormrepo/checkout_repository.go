package gormrepo

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/repositories"
)

// WebhookEventRepository de-duplicates Stripe deliveries by event id.
type WebhookEventRepository struct {
	db *gorm.DB
}

// MarkProcessed inserts the event id and reports whether it was new.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	if strings.TrimSpace(event.ID) == "" {
		return false, errors.New("webhook_events.mark: id is required")
	}
	row := WebhookEventModel{ID: event.ID, Type: event.Type, ProcessedAt: event.ProcessedAt.UTC()}
	res := conn(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, wrapError("webhook_events.mark", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *WebhookEventRepository) Forget(ctx context.Context, eventID string) error {
	err := conn(ctx, r.db).Where("id = ?", eventID).Delete(&WebhookEventModel{}).Error
	return wrapError("webhook_events.forget", err)
}

// SubscriptionRepository stores Stripe subscription snapshots.
type SubscriptionRepository struct {
	db *gorm.DB
}

// Upsert replaces the stored snapshot. Invoice fields already recorded are kept when the update omits them.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub domain.Subscription) error {
	if strings.TrimSpace(sub.ID) == "" {
		return errors.New("subscriptions.upsert: id is required")
	}
	meta := ""
	if len(sub.Metadata) > 0 {
		data, err := json.Marshal(sub.Metadata)
		if err != nil {
			return err
		}
		meta = string(data)
	}
	row := SubscriptionModel{
		ID:            sub.ID,
		CustomerID:    sub.CustomerID,
		CustomerEmail: sub.CustomerEmail,
		Status:        sub.Status,
		LastInvoiceID: sub.LastInvoiceID,
		PaymentStatus: sub.PaymentStatus,
		Metadata:      meta,
		UpdatedAt:     sub.UpdatedAt.UTC(),
	}
	columns := []string{"customer_id", "status", "metadata", "updated_at"}
	if sub.CustomerEmail != "" {
		columns = append(columns, "customer_email")
	}
	if sub.LastInvoiceID != "" {
		columns = append(columns, "last_invoice_id")
	}
	if sub.PaymentStatus != "" {
		columns = append(columns, "payment_status")
	}
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	return wrapError("subscriptions.upsert", err)
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	var row SubscriptionModel
	err := conn(ctx, r.db).Where("id = ?", subscriptionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Subscription{}, notFound("subscriptions.find", "subscription %s not found", subscriptionID)
	}
	if err != nil {
		return domain.Subscription{}, wrapError("subscriptions.find", err)
	}
	sub := domain.Subscription{
		ID:            row.ID,
		CustomerID:    row.CustomerID,
		CustomerEmail: row.CustomerEmail,
		Status:        row.Status,
		LastInvoiceID: row.LastInvoiceID,
		PaymentStatus: row.PaymentStatus,
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &sub.Metadata); err != nil {
			return domain.Subscription{}, wrapError("subscriptions.find", err)
		}
	}
	return sub, nil
}

// UpdatePayment records an invoice outcome. Unknown subscriptions are reported as not found.
func (r *SubscriptionRepository) UpdatePayment(ctx context.Context, subscriptionID string, update repositories.SubscriptionPaymentUpdate) error {
	res := conn(ctx, r.db).Model(&SubscriptionModel{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]any{
			"last_invoice_id": update.InvoiceID,
			"payment_status":  update.PaymentStatus,
			"updated_at":      update.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return wrapError("subscriptions.update_payment", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("subscriptions.update_payment", "subscription %s not found", subscriptionID)
	}
	return nil
}

// CheckoutPaymentRepository stores completed one-shot checkouts.
type CheckoutPaymentRepository struct {
	db *gorm.DB
}

func (r *CheckoutPaymentRepository) Upsert(ctx context.Context, payment domain.CheckoutPayment) error {
	if strings.TrimSpace(payment.SessionID) == "" {
		return errors.New("checkout_payments.upsert: session id is required")
	}
	row := CheckoutPaymentModel{
		SessionID:     payment.SessionID,
		CustomerEmail: payment.CustomerEmail,
		AmountTotal:   payment.AmountTotal,
		Currency:      payment.Currency,
		Status:        payment.Status,
		CompletedAt:   payment.CompletedAt.UTC(),
	}
	err := conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_email", "amount_total", "currency", "status", "completed_at"}),
	}).Create(&row).Error
	return wrapError("checkout_payments.upsert", err)
}

func (r *CheckoutPaymentRepository) FindBySession(ctx context.Context, sessionID string) (domain.CheckoutPayment, error) {
	var row CheckoutPaymentModel
	err := conn(ctx, r.db).Where("session_id = ?", sessionID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.CheckoutPayment{}, notFound("checkout_payments.find", "checkout session %s not found", sessionID)
	}
	if err != nil {
		return domain.CheckoutPayment{}, wrapError("checkout_payments.find", err)
	}
	return domain.CheckoutPayment{
		SessionID:     row.SessionID,
		CustomerEmail: row.CustomerEmail,
		AmountTotal:   row.AmountTotal,
		Currency:      row.Currency,
		Status:        row.Status,
		CompletedAt:   row.CompletedAt.UTC(),
	}, nil
}
