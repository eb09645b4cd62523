package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/recophone/api/internal/payments"
	"github.com/recophone/api/internal/platform/textutil"
)

const checkoutCurrency = "eur"

var (
	// ErrCheckoutEmptyCart indicates no item was submitted.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutMixedCart indicates plans and one-shot products were submitted together.
	ErrCheckoutMixedCart = errors.New("checkout: plans and products must be paid separately")
	// ErrCheckoutMultiplePlans indicates more than one subscription plan was submitted.
	ErrCheckoutMultiplePlans = errors.New("checkout: only one plan per checkout")
	// ErrCheckoutUnknownPlan indicates the plan key has no configured price.
	ErrCheckoutUnknownPlan = errors.New("checkout: unknown plan")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

var gradePrefix = regexp.MustCompile(`(?i)grade\s*`)

// ProductLookup resolves a storefront product by id.
type ProductLookup interface {
	Product(ctx context.Context, id string) (Product, bool, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
// When Products is set, lines naming a known product are charged the feed price.
type CheckoutServiceDeps struct {
	Payments   payments.Gateway
	Products   ProductLookup
	PlanPrices map[string]string
	SiteURL    string
	Clock      func() time.Time
	Logger     Logger
}

// CheckoutService turns a storefront cart into a hosted Stripe Checkout session.
type CheckoutService struct {
	payments   payments.Gateway
	products   ProductLookup
	planPrices map[string]string
	siteURL    string
	now        func() time.Time
	logger     Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (*CheckoutService, error) {
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	site := strings.TrimRight(strings.TrimSpace(deps.SiteURL), "/")
	if site == "" {
		return nil, errors.New("checkout service: site url is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	return &CheckoutService{
		payments:   deps.Payments,
		products:   deps.Products,
		planPrices: textutil.LowerKeys(deps.PlanPrices),
		siteURL:    site,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateSession validates the cart shape and creates a subscription or payment session.
func (s *CheckoutService) CreateSession(ctx context.Context, items []CartLine) (CheckoutSession, error) {
	if len(items) == 0 {
		return CheckoutSession{}, ErrCheckoutEmptyCart
	}
	var plans, products []CartLine
	for _, item := range items {
		if item.IsPlan() {
			plans = append(plans, item)
		} else {
			products = append(products, item)
		}
	}
	if len(plans) > 0 && len(products) > 0 {
		return CheckoutSession{}, ErrCheckoutMixedCart
	}

	req := payments.CheckoutSessionRequest{
		SuccessURL: s.siteURL + "/abonnements/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.siteURL + "/panier",
		Locale:     "fr",
	}
	if len(plans) > 0 {
		if len(plans) > 1 {
			return CheckoutSession{}, ErrCheckoutMultiplePlans
		}
		planKey := strings.ToLower(metaString(plans[0].Meta, "planKey"))
		priceID, ok := s.planPrices[planKey]
		if !ok {
			return CheckoutSession{}, fmt.Errorf("%w: %q", ErrCheckoutUnknownPlan, planKey)
		}
		req.Mode = payments.ModeSubscription
		req.Metadata = map[string]string{"planKey": planKey}
		req.Items = []payments.CheckoutLineItem{{PriceID: priceID, Quantity: 1}}
	} else {
		req.Mode = payments.ModePayment
		req.Items = make([]payments.CheckoutLineItem, 0, len(products))
		for _, item := range products {
			req.Items = append(req.Items, payments.CheckoutLineItem{
				Name:        strings.TrimSpace(item.Title),
				Description: ProductDescription(item.Meta),
				Quantity:    max(item.Qty, 1),
				Amount:      s.unitAmount(ctx, item),
				Currency:    checkoutCurrency,
			})
		}
	}
	req.IdempotencyKey = checkoutIdempotencyKey(req, s.now())

	session, err := s.payments.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"mode":  string(req.Mode),
			"items": len(req.Items),
			"error": err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	s.logger(ctx, "checkout.session_created", map[string]any{
		"sessionId": session.ID,
		"mode":      string(session.Mode),
	})
	return CheckoutSession{
		ID:        session.ID,
		URL:       session.RedirectURL,
		Mode:      CheckoutMode(session.Mode),
		CreatedAt: s.now(),
	}, nil
}

// unitAmount is the line price in cents: the feed price converted with ToCents for a known
// product, otherwise the cart's own amount.
func (s *CheckoutService) unitAmount(ctx context.Context, item CartLine) int64 {
	if s.products != nil && strings.TrimSpace(item.ID) != "" {
		product, ok, err := s.products.Product(ctx, item.ID)
		switch {
		case err != nil:
			s.logger(ctx, "checkout.product_lookup_failed", map[string]any{"productId": item.ID, "error": err.Error()})
		case ok && product.PriceEUR != nil:
			return max(ToCents(*product.PriceEUR), 0)
		}
	}
	return max(item.UnitPrice, 0)
}

// ProductDescription renders "Noir • 128 Go • Grade A" from color, capacity and grade metadata.
func ProductDescription(meta map[string]any) string {
	var parts []string
	if color := metaString(meta, "color"); color != "" {
		r, size := utf8.DecodeRuneInString(color)
		parts = append(parts, string(unicode.ToUpper(r))+color[size:])
	}
	if capacity := metaString(meta, "capacity"); capacity != "" {
		parts = append(parts, capacity)
	}
	if grade := strings.ToUpper(strings.TrimSpace(gradePrefix.ReplaceAllString(metaString(meta, "grade"), ""))); grade != "" {
		parts = append(parts, "Grade "+grade)
	}
	return strings.Join(parts, " • ")
}

func metaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	value, ok := meta[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

// checkoutIdempotencyKey collapses double submissions of the same cart within one minute.
func checkoutIdempotencyKey(req payments.CheckoutSessionRequest, now time.Time) string {
	var b strings.Builder
	b.WriteString(string(req.Mode))
	b.WriteString("|")
	b.WriteString(now.Truncate(time.Minute).Format(time.RFC3339))
	for _, item := range req.Items {
		fmt.Fprintf(&b, "|%s:%s:%d:%d", item.PriceID, item.Name, item.Amount, item.Quantity)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
