package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	reebill "reebill/internal/reebill/domain"
)

const defaultPaymentTable = "payments"

// PaymentRepository is a Postgres payment store.
type PaymentRepository struct {
	db    *sql.DB
	table string
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db, table: defaultPaymentTable}
}

// Add stores a payment.
func (r *PaymentRepository) Add(ctx context.Context, p reebill.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("payment repo: nil db")
	}
	if p.AccountID == "" {
		return reebill.ErrEmptyAccountID
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, account_id, date_received, credit, description)
VALUES ($1,$2,$3,$4,$5)`, r.table),
		p.ID, p.AccountID, p.DateReceived.UTC(), p.Credit, p.Description)
	return err
}

// ListReceived returns payments received in [from, to) ordered by date. A
// zero from means no lower bound.
func (r *PaymentRepository) ListReceived(ctx context.Context, accountID string, from, to time.Time) ([]reebill.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, account_id, date_received, credit, description
FROM %s
WHERE account_id = $1 AND ($2::timestamptz IS NULL OR date_received >= $2) AND date_received < $3
ORDER BY date_received ASC`, r.table), accountID, nullTime(from), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reebill.Payment
	for rows.Next() {
		var p reebill.Payment
		if err := rows.Scan(&p.ID, &p.AccountID, &p.DateReceived, &p.Credit, &p.Description); err != nil {
			return nil, err
		}
		p.DateReceived = p.DateReceived.UTC()
		result = append(result, p)
	}
	return result, rows.Err()
}
