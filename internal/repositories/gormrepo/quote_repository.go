package gormrepo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/recophone/api/internal/domain"
	"github.com/recophone/api/internal/platform/pagination"
	"github.com/recophone/api/internal/repositories"
)

const defaultQuotePageSize = 50

// QuoteRepository stores the finalization ledger.
type QuoteRepository struct {
	db *gorm.DB
}

func (r *QuoteRepository) Insert(ctx context.Context, record domain.QuoteRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("quotes.insert: id is required")
	}
	if record.CreatedAt.IsZero() {
		return errors.New("quotes.insert: createdAt is required")
	}
	row := quoteToModel(record)
	return wrapError("quotes.insert", conn(ctx, r.db).Create(&row).Error)
}

// FindByNumber returns the most recent ledger entry for quoteNumber.
func (r *QuoteRepository) FindByNumber(ctx context.Context, quoteNumber string) (domain.QuoteRecord, error) {
	var row QuoteRecordModel
	err := conn(ctx, r.db).
		Where("quote_number = ?", strings.TrimSpace(quoteNumber)).
		Order("created_at DESC").Order("id DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.QuoteRecord{}, notFound("quotes.find", "quote %s not found", quoteNumber)
	}
	if err != nil {
		return domain.QuoteRecord{}, wrapError("quotes.find", err)
	}
	return quoteFromModel(row), nil
}

// List pages the ledger newest first using a (created_at, id) keyset.
func (r *QuoteRepository) List(ctx context.Context, filter repositories.QuoteListFilter) (domain.CursorPage[domain.QuoteRecord], error) {
	size := filter.PageSize
	if size <= 0 {
		size = defaultQuotePageSize
	}

	query := conn(ctx, r.db).Model(&QuoteRecordModel{})
	if len(filter.Status) > 0 {
		statuses := make([]string, 0, len(filter.Status))
		for _, s := range filter.Status {
			statuses = append(statuses, string(s))
		}
		query = query.Where("status IN ?", statuses)
	}
	if !filter.AfterCreatedAt.IsZero() {
		after := filter.AfterCreatedAt.UTC()
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", after, after, filter.AfterID)
	}

	var rows []QuoteRecordModel
	if err := query.Order("created_at DESC").Order("id DESC").Limit(size + 1).Find(&rows).Error; err != nil {
		return domain.CursorPage[domain.QuoteRecord]{}, wrapError("quotes.list", err)
	}

	page := domain.CursorPage[domain.QuoteRecord]{Items: make([]domain.QuoteRecord, 0, min(len(rows), size))}
	for i, row := range rows {
		if i == size {
			last := rows[size-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt.UTC(), ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.QuoteRecord]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, quoteFromModel(row))
	}
	return page, nil
}

func quoteToModel(record domain.QuoteRecord) QuoteRecordModel {
	return QuoteRecordModel{
		ID:              record.ID,
		QuoteNumber:     record.QuoteNumber,
		ContractNumber:  record.ContractNumber,
		Folder:          record.Folder,
		ClientName:      record.ClientName,
		ClientEmail:     record.ClientEmail,
		DeviceCount:     record.DeviceCount,
		Total:           record.Total,
		TravelFee:       record.TravelFee,
		ADomicile:       record.ADomicile,
		AppointmentDate: record.Appointment.Date,
		AppointmentSlot: record.Appointment.Slot,
		Status:          string(record.Status),
		Error:           record.Error,
		QuoteURL:        record.QuoteURL,
		ContractURL:     record.ContractURL,
		CreatedAt:       record.CreatedAt.UTC(),
	}
}

func quoteFromModel(row QuoteRecordModel) domain.QuoteRecord {
	return domain.QuoteRecord{
		ID:             row.ID,
		QuoteNumber:    row.QuoteNumber,
		ContractNumber: row.ContractNumber,
		Folder:         row.Folder,
		ClientName:     row.ClientName,
		ClientEmail:    row.ClientEmail,
		DeviceCount:    row.DeviceCount,
		Total:          row.Total,
		TravelFee:      row.TravelFee,
		ADomicile:      row.ADomicile,
		Appointment:    domain.Appointment{Date: row.AppointmentDate, Slot: row.AppointmentSlot},
		Status:         domain.QuoteStatus(row.Status),
		Error:          row.Error,
		QuoteURL:       row.QuoteURL,
		ContractURL:    row.ContractURL,
		CreatedAt:      row.CreatedAt.UTC(),
	}
}
