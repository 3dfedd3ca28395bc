package pgstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/cargodesk/consotrack/internal/errs"
	"github.com/cargodesk/consotrack/internal/models"
)

func (s *Storage) CreateInvoice(ctx context.Context, in models.InvoiceCreateInput) (*models.Invoice, error) {
	now := time.Now().UTC()

	var inv models.Invoice
	var amount string
	err := s.db.QueryRow(ctx, `
INSERT INTO invoices (container_id, number, amount, currency, issued_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, container_id, number, amount::text, currency, issued_at, created_at
`, in.ContainerID, in.Number, in.Amount.String(), in.Currency, in.IssuedAt.UTC(), now).Scan(
		&inv.ID, &inv.ContainerID, &inv.Number, &amount, &inv.Currency, &inv.IssuedAt, &inv.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, errs.NotFound("container", in.ContainerID)
		}
		return nil, errors.Wrap(err, "insert invoice")
	}

	inv.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, errors.Wrap(err, "parse invoice amount")
	}
	return &inv, nil
}

func (s *Storage) ListInvoices(ctx context.Context, containerID uint64) ([]*models.Invoice, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, container_id, number, amount::text, currency, issued_at, created_at
FROM invoices
WHERE container_id = $1
ORDER BY issued_at DESC, id DESC
`, containerID)
	if err != nil {
		return nil, errors.Wrap(err, "select invoices")
	}
	defer rows.Close()

	var out []*models.Invoice
	for rows.Next() {
		var inv models.Invoice
		var amount string
		if err := rows.Scan(&inv.ID, &inv.ContainerID, &inv.Number, &amount, &inv.Currency, &inv.IssuedAt, &inv.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan invoice")
		}
		if inv.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, errors.Wrap(err, "parse invoice amount")
		}
		out = append(out, &inv)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
