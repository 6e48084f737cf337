package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	charges "reebill/internal/charges/domain"
	utilbill "reebill/internal/utilbill/domain"
)

const defaultUtilBillTable = "utilbills"

// UtilBillRepository is a Postgres implementation of utilbill.Repository.
// Registers and charges are stored as JSONB documents.
type UtilBillRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*UtilBillRepository)

// WithTable overrides the default table.
func WithTable(table string) RepositoryOption {
	return func(repo *UtilBillRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewUtilBillRepository constructs a repository.
func NewUtilBillRepository(db *sql.DB, opts ...RepositoryOption) *UtilBillRepository {
	repo := &UtilBillRepository{db: db, table: defaultUtilBillTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

type chargeRow struct {
	Binding         string             `json:"binding"`
	Description     string             `json:"description,omitempty"`
	QuantityFormula string             `json:"quantity_formula"`
	Rate            float64            `json:"rate"`
	Unit            string             `json:"unit"`
	Type            charges.ChargeType `json:"type"`
	HasCharge       bool               `json:"has_charge"`
	TargetTotal     *float64           `json:"target_total,omitempty"`
	Quantity        *float64           `json:"quantity,omitempty"`
	Total           *float64           `json:"total,omitempty"`
	Error           string             `json:"error,omitempty"`
}

type registerRow struct {
	Binding         string  `json:"binding"`
	Description     string  `json:"description,omitempty"`
	Quantity        float64 `json:"quantity"`
	Unit            string  `json:"unit"`
	MeterIdentifier string  `json:"meter_identifier,omitempty"`
	Estimated       bool    `json:"estimated,omitempty"`
}

type rateClassRow struct {
	Name        string                      `json:"name"`
	Utility     string                      `json:"utility,omitempty"`
	ServiceType string                      `json:"service_type,omitempty"`
	Registers   []utilbill.RegisterTemplate `json:"registers,omitempty"`
}

// Get loads a bill by id.
func (r *UtilBillRepository) Get(ctx context.Context, id string) (*utilbill.UtilBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("utilbill repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, account_id, supplier, rate_class, period_start, period_end, date_received,
	processed, registers, charges
FROM %s
WHERE id = $1`, r.table)
	bill, err := scanUtilBill(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return bill, err
}

// ListByAccount returns the account's bills ordered by period start then id.
func (r *UtilBillRepository) ListByAccount(ctx context.Context, accountID string) ([]*utilbill.UtilBill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("utilbill repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, account_id, supplier, rate_class, period_start, period_end, date_received,
	processed, registers, charges
FROM %s
WHERE account_id = $1
ORDER BY period_start ASC NULLS LAST, id ASC`, r.table)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*utilbill.UtilBill
	for rows.Next() {
		bill, err := scanUtilBill(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, bill)
	}
	return result, rows.Err()
}

// Save upserts a bill.
func (r *UtilBillRepository) Save(ctx context.Context, bill *utilbill.UtilBill) error {
	if r == nil || r.db == nil {
		return errors.New("utilbill repo: nil db")
	}
	if bill == nil {
		return utilbill.ErrNilBill
	}
	s := bill.Snapshot()
	rateClass, err := json.Marshal(toRateClassRow(s.RateClass))
	if err != nil {
		return err
	}
	registers, err := json.Marshal(toRegisterRows(s.Registers))
	if err != nil {
		return err
	}
	chargeDocs, err := json.Marshal(toChargeRows(s.Charges))
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, account_id, supplier, rate_class, period_start, period_end, date_received,
	processed, registers, charges, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
ON CONFLICT (id) DO UPDATE SET
	account_id = EXCLUDED.account_id,
	supplier = EXCLUDED.supplier,
	rate_class = EXCLUDED.rate_class,
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	date_received = EXCLUDED.date_received,
	processed = EXCLUDED.processed,
	registers = EXCLUDED.registers,
	charges = EXCLUDED.charges,
	updated_at = NOW()`, r.table)
	_, err = r.db.ExecContext(ctx, query,
		s.ID, s.AccountID, s.Supplier, string(rateClass),
		nullTime(s.PeriodStart), nullTime(s.PeriodEnd), nullTime(s.DateReceived),
		s.Processed, string(registers), string(chargeDocs),
	)
	return err
}

// Delete removes a bill.
func (r *UtilBillRepository) Delete(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("utilbill repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", r.table), id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUtilBill(row rowScanner) (*utilbill.UtilBill, error) {
	var (
		s                                    utilbill.Snapshot
		rateClass, registers, chargeDocs     []byte
		periodStart, periodEnd, dateReceived sql.NullTime
	)
	if err := row.Scan(
		&s.ID, &s.AccountID, &s.Supplier, &rateClass,
		&periodStart, &periodEnd, &dateReceived,
		&s.Processed, &registers, &chargeDocs,
	); err != nil {
		return nil, err
	}

	var rc rateClassRow
	if err := json.Unmarshal(rateClass, &rc); err != nil {
		return nil, fmt.Errorf("utilbill repo: rate class of %s: %w", s.ID, err)
	}
	var regRows []registerRow
	if err := json.Unmarshal(registers, &regRows); err != nil {
		return nil, fmt.Errorf("utilbill repo: registers of %s: %w", s.ID, err)
	}
	var chargeRows []chargeRow
	if err := json.Unmarshal(chargeDocs, &chargeRows); err != nil {
		return nil, fmt.Errorf("utilbill repo: charges of %s: %w", s.ID, err)
	}

	s.RateClass = &utilbill.RateClass{Name: rc.Name, Utility: rc.Utility, ServiceType: rc.ServiceType, Registers: rc.Registers}
	s.PeriodStart = timeOrZero(periodStart)
	s.PeriodEnd = timeOrZero(periodEnd)
	s.DateReceived = timeOrZero(dateReceived)
	for _, reg := range regRows {
		s.Registers = append(s.Registers, charges.Register(reg))
	}
	for _, c := range chargeRows {
		s.Charges = append(s.Charges, utilbill.ChargeSnapshot(c))
	}
	return utilbill.FromSnapshot(s)
}

func toRateClassRow(rc *utilbill.RateClass) rateClassRow {
	if rc == nil {
		return rateClassRow{}
	}
	return rateClassRow{Name: rc.Name, Utility: rc.Utility, ServiceType: rc.ServiceType, Registers: rc.Registers}
}

func toRegisterRows(registers []charges.Register) []registerRow {
	out := make([]registerRow, 0, len(registers))
	for _, reg := range registers {
		out = append(out, registerRow(reg))
	}
	return out
}

func toChargeRows(snapshots []utilbill.ChargeSnapshot) []chargeRow {
	out := make([]chargeRow, 0, len(snapshots))
	for _, c := range snapshots {
		out = append(out, chargeRow(c))
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timeOrZero(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
