package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	charges "reebill/internal/charges/domain"
	reebill "reebill/internal/reebill/domain"
)

const defaultReeBillTable = "reebills"

// ReeBillRepository is a Postgres implementation of reebill.Repository.
type ReeBillRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReeBillRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *ReeBillRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReeBillRepository constructs a repository.
func NewReeBillRepository(db *sql.DB, opts ...RepositoryOption) *ReeBillRepository {
	repo := &ReeBillRepository{db: db, table: defaultReeBillTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

type readingRow struct {
	RegisterBinding      string  `json:"register_binding"`
	MeasureName          string  `json:"measure_name"`
	Unit                 string  `json:"unit"`
	ConventionalQuantity float64 `json:"conventional_quantity"`
	RenewableQuantity    float64 `json:"renewable_quantity"`
}

type chargeRow struct {
	Binding     string             `json:"binding"`
	Description string             `json:"description,omitempty"`
	Type        charges.ChargeType `json:"type"`
	Unit        string             `json:"unit"`
	Rate        float64            `json:"rate"`
	AQuantity   float64            `json:"a_quantity"`
	HQuantity   float64            `json:"h_quantity"`
	ATotal      float64            `json:"a_total"`
	HTotal      float64            `json:"h_total"`
}

const selectColumns = `account_id, sequence, version, utilbill_id, discount_rate, late_charge_rate,
	readings, charges, computed, ree_value, ree_charge, ree_savings,
	prior_balance, payment_received, total_adjustment, manual_adjustment, late_charge_applies,
	balance_forward, late_charge, balance_due, processed, issued, issue_date, due_date`

// Get loads one version.
func (r *ReeBillRepository) Get(ctx context.Context, key reebill.Key) (*reebill.ReeBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reebill repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE account_id = $1 AND sequence = $2 AND version = $3`, selectColumns, r.table)
	bill, err := scanReeBill(r.db.QueryRowContext(ctx, query, key.AccountID, key.Sequence, key.Version))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return bill, err
}

// GetLatest loads the highest version of a sequence.
func (r *ReeBillRepository) GetLatest(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reebill repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE account_id = $1 AND sequence = $2
ORDER BY version DESC
LIMIT 1`, selectColumns, r.table)
	bill, err := scanReeBill(r.db.QueryRowContext(ctx, query, accountID, sequence))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return bill, err
}

// ListByAccount returns every version ordered by sequence then version.
func (r *ReeBillRepository) ListByAccount(ctx context.Context, accountID string) ([]*reebill.ReeBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reebill repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE account_id = $1
ORDER BY sequence ASC, version ASC`, selectColumns, r.table)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*reebill.ReeBill
	for rows.Next() {
		bill, err := scanReeBill(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, bill)
	}
	return result, rows.Err()
}

// Save upserts a version.
func (r *ReeBillRepository) Save(ctx context.Context, bill *reebill.ReeBill) error {
	if r == nil || r.db == nil {
		return errors.New("reebill repo: nil db")
	}
	if bill == nil {
		return reebill.ErrNilReeBill
	}
	s := bill.Snapshot()
	readings := make([]readingRow, 0, len(s.Readings))
	for _, rd := range s.Readings {
		readings = append(readings, readingRow(rd))
	}
	readingDoc, err := json.Marshal(readings)
	if err != nil {
		return err
	}
	chargeRows := make([]chargeRow, 0, len(s.Charges))
	for _, c := range s.Charges {
		chargeRows = append(chargeRows, chargeRow(c))
	}
	chargeDoc, err := json.Marshal(chargeRows)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,NOW())
ON CONFLICT (account_id, sequence, version) DO UPDATE SET
	utilbill_id = EXCLUDED.utilbill_id,
	discount_rate = EXCLUDED.discount_rate,
	late_charge_rate = EXCLUDED.late_charge_rate,
	readings = EXCLUDED.readings,
	charges = EXCLUDED.charges,
	computed = EXCLUDED.computed,
	ree_value = EXCLUDED.ree_value,
	ree_charge = EXCLUDED.ree_charge,
	ree_savings = EXCLUDED.ree_savings,
	prior_balance = EXCLUDED.prior_balance,
	payment_received = EXCLUDED.payment_received,
	total_adjustment = EXCLUDED.total_adjustment,
	manual_adjustment = EXCLUDED.manual_adjustment,
	late_charge_applies = EXCLUDED.late_charge_applies,
	balance_forward = EXCLUDED.balance_forward,
	late_charge = EXCLUDED.late_charge,
	balance_due = EXCLUDED.balance_due,
	processed = EXCLUDED.processed,
	issued = EXCLUDED.issued,
	issue_date = EXCLUDED.issue_date,
	due_date = EXCLUDED.due_date,
	updated_at = NOW()`, r.table, selectColumns)
	_, err = r.db.ExecContext(ctx, query,
		s.AccountID, s.Sequence, s.Version, s.UtilBillID, s.DiscountRate, s.LateChargeRate,
		string(readingDoc), string(chargeDoc), s.Computed, s.ReeValue, s.ReeCharge, s.ReeSavings,
		s.PriorBalance, s.PaymentReceived, s.TotalAdjustment, s.ManualAdjustment, s.LateChargeApplies,
		s.BalanceForward, s.LateCharge, s.BalanceDue, s.Processed, s.Issued,
		nullTime(s.IssueDate), nullTime(s.DueDate),
	)
	return err
}

// LastSequence returns the highest sequence of the account, 0 when none.
func (r *ReeBillRepository) LastSequence(ctx context.Context, accountID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("reebill repo: nil db")
	}
	var last sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(sequence) FROM %s WHERE account_id = $1", r.table)
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&last); err != nil {
		return 0, err
	}
	if !last.Valid {
		return 0, nil
	}
	return int(last.Int64), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReeBill(row rowScanner) (*reebill.ReeBill, error) {
	var (
		s                     reebill.Snapshot
		readingDoc, chargeDoc []byte
		issueDate, dueDate    sql.NullTime
	)
	if err := row.Scan(
		&s.AccountID, &s.Sequence, &s.Version, &s.UtilBillID, &s.DiscountRate, &s.LateChargeRate,
		&readingDoc, &chargeDoc, &s.Computed, &s.ReeValue, &s.ReeCharge, &s.ReeSavings,
		&s.PriorBalance, &s.PaymentReceived, &s.TotalAdjustment, &s.ManualAdjustment, &s.LateChargeApplies,
		&s.BalanceForward, &s.LateCharge, &s.BalanceDue, &s.Processed, &s.Issued,
		&issueDate, &dueDate,
	); err != nil {
		return nil, err
	}
	var readings []readingRow
	if err := json.Unmarshal(readingDoc, &readings); err != nil {
		return nil, fmt.Errorf("reebill repo: readings: %w", err)
	}
	var chargeRows []chargeRow
	if err := json.Unmarshal(chargeDoc, &chargeRows); err != nil {
		return nil, fmt.Errorf("reebill repo: charges: %w", err)
	}
	for _, rd := range readings {
		s.Readings = append(s.Readings, reebill.Reading(rd))
	}
	for _, c := range chargeRows {
		s.Charges = append(s.Charges, reebill.ReeBillCharge(c))
	}
	if issueDate.Valid {
		s.IssueDate = issueDate.Time.UTC()
	}
	if dueDate.Valid {
		s.DueDate = dueDate.Time.UTC()
	}
	return reebill.FromSnapshot(s)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
