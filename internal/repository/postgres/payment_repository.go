package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainErrors "github.com/optishop/payments/internal/domain/errors"
	"github.com/optishop/payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// allowedSortColumns is a whitelist of columns valid for ORDER BY.
var allowedSortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"amount":     "amount",
	"status":     "status",
}

const paymentColumns = `id, sale_reference, branch_id, method, amount,
	        external_reference, provider_resource_id, status, created_at, updated_at, decided_at`

// PaymentRepository implements payment.Repository using PostgreSQL.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository creates a new PaymentRepository.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Create inserts a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payments
		 (id, sale_reference, branch_id, method, amount,
		  external_reference, provider_resource_id, status, created_at, updated_at, decided_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.SaleReference, p.BranchID, string(p.Method), p.Amount,
		p.ExternalReference, p.ProviderResourceID, string(p.Status), p.CreatedAt, p.UpdatedAt, p.DecidedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domainErrors.ErrDuplicateExternalReference
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

// GetByExternalReference retrieves a payment by its correlation key.
func (r *PaymentRepository) GetByExternalReference(ctx context.Context, ref string) (*payment.Payment, error) {
	return r.scanPayment(r.db(ctx).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_reference = $1`, ref))
}

// Update updates an existing payment.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE payments SET
		  status=$1, provider_resource_id=$2, updated_at=$3, decided_at=$4
		 WHERE id=$5`,
		string(p.Status), p.ProviderResourceID, p.UpdatedAt, p.DecidedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrPaymentNotFound
	}
	return nil
}

// ApplyStatus conditionally transitions the payment addressed by ref.
// The WHERE clause restricts the update to rows still pending, so the
// terminal-state check and the write happen as one atomic statement:
// concurrent deliveries for the same payment cannot both transition it.
// A non-final status only records the provider resource id.
func (r *PaymentRepository) ApplyStatus(ctx context.Context, ref string, status payment.Status, providerResourceID string) (bool, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if status.IsFinal() {
		tag, err = r.db(ctx).Exec(ctx,
			`UPDATE payments SET
			  status = $2,
			  provider_resource_id = COALESCE(provider_resource_id, NULLIF($3, '')),
			  decided_at = NOW(),
			  updated_at = NOW()
			 WHERE external_reference = $1 AND status = 'pending'`,
			ref, string(status), providerResourceID,
		)
	} else {
		tag, err = r.db(ctx).Exec(ctx,
			`UPDATE payments SET
			  provider_resource_id = COALESCE(provider_resource_id, NULLIF($2, '')),
			  updated_at = NOW()
			 WHERE external_reference = $1 AND status = 'pending'`,
			ref, providerResourceID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("apply status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPendingWithResource lists pending payments that already carry a
// provider resource id, oldest first, for polling reconciliation.
func (r *PaymentRepository) ListPendingWithResource(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = 'pending' AND provider_resource_id IS NOT NULL
		 ORDER BY created_at ASC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// ListPendingWithoutResource lists pending provider-settled payments that
// never recorded a provider resource id, oldest first. Manual methods are
// skipped: they settle at the counter, not through the provider.
func (r *PaymentRepository) ListPendingWithoutResource(ctx context.Context, limit int) ([]*payment.Payment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+paymentColumns+`
		 FROM payments
		 WHERE status = 'pending' AND provider_resource_id IS NULL
		   AND method NOT IN ('cash', 'terminal')
		 ORDER BY created_at ASC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved pending payments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// CountPending counts payments still awaiting settlement.
func (r *PaymentRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE status = 'pending'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending payments: %w", err)
	}
	return count, nil
}

// List lists payments with optional filters.
func (r *PaymentRepository) List(ctx context.Context, f payment.ListFilter) ([]*payment.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	args := []any{}
	argIdx := 1

	if f.SaleReference != nil {
		query += fmt.Sprintf(" AND sale_reference = $%d", argIdx)
		args = append(args, *f.SaleReference)
		argIdx++
	}
	if f.BranchID != nil {
		query += fmt.Sprintf(" AND branch_id = $%d", argIdx)
		args = append(args, *f.BranchID)
		argIdx++
	}
	if f.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.Method != nil {
		query += fmt.Sprintf(" AND method = $%d", argIdx)
		args = append(args, string(*f.Method))
		argIdx++
	}

	// Strict whitelist for sort column
	sortBy := "created_at"
	if col, ok := allowedSortColumns[f.SortBy]; ok {
		sortBy = col
	}
	sortOrder := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		sortOrder = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, sortOrder)

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	return r.collect(rows)
}

// --- scanning helpers ---

func (r *PaymentRepository) collect(rows pgx.Rows) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// scanPayment scans a payment from any source implementing the scanner interface.
func (r *PaymentRepository) scanPayment(s scanner) (*payment.Payment, error) {
	p := &payment.Payment{}
	var (
		method string
		status string
	)
	err := s.Scan(
		&p.ID, &p.SaleReference, &p.BranchID, &method, &p.Amount,
		&p.ExternalReference, &p.ProviderResourceID, &status, &p.CreatedAt, &p.UpdatedAt, &p.DecidedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Method = payment.Method(method)
	p.Status = payment.Status(status)
	return p, nil
}
