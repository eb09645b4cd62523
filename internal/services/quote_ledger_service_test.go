package services

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/pagination"
)

func TestQuoteLedgerServicePagesAndFilters(t *testing.T) {
	reg := newWebhookRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		status := domain.QuoteStatusDelivered
		if i == 2 {
			status = domain.QuoteStatusFailed
		}
		require.NoError(t, reg.Quotes().Insert(ctx, domain.QuoteRecord{
			ID:          fmt.Sprintf("01HZ%022d", i),
			QuoteNumber: fmt.Sprintf("RP_%05d", i),
			Status:      status,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}))
	}

	svc, err := NewQuoteLedgerService(reg.Quotes())
	require.NoError(t, err)

	params, err := pagination.Parse(url.Values{"pageSize": {"2"}})
	require.NoError(t, err)
	page, err := svc.List(ctx, QuoteLedgerQuery{Page: params})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "RP_00003", page.Items[0].QuoteNumber)
	require.NotEmpty(t, page.NextPageToken)

	params, err = pagination.Parse(url.Values{"pageSize": {"2"}, "pageToken": {page.NextPageToken}})
	require.NoError(t, err)
	page, err = svc.List(ctx, QuoteLedgerQuery{Page: params})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "RP_00001", page.Items[0].QuoteNumber)
	assert.Empty(t, page.NextPageToken)

	failed, err := svc.List(ctx, QuoteLedgerQuery{Page: pagination.Params{PageSize: 10}, Status: "FAILED"})
	require.NoError(t, err)
	require.Len(t, failed.Items, 1)
	assert.Equal(t, "RP_00002", failed.Items[0].QuoteNumber)

	_, err = svc.List(ctx, QuoteLedgerQuery{Status: "pending"})
	require.ErrorIs(t, err, ErrQuoteLedgerInvalidFilter)

	record, err := svc.Find(ctx, "RP_00002")
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteStatusFailed, record.Status)
	_, err = svc.Find(ctx, "RP_99999")
	require.ErrorIs(t, err, ErrQuoteRecordNotFound)
}
