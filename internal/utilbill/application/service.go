package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	charges "reebill/internal/charges/domain"
	"reebill/internal/charges/formula"
	"reebill/internal/observability/metrics"
	utilbill "reebill/internal/utilbill/domain"
)

// ChargesComputed is emitted after a utility bill's charges are evaluated.
type ChargesComputed struct {
	BillID     string
	AccountID  string
	Total      float64
	Errors     map[string]string
	OccurredAt time.Time
}

// Publisher emits utility bill events.
type Publisher interface {
	PublishChargesComputed(ctx context.Context, event ChargesComputed) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Service handles utility bill use cases.
type Service struct {
	repo      utilbill.Repository
	catalog   utilbill.RateClassCatalog
	publisher Publisher
	clock     Clock
	logger    zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock sets the clock.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService constructs the service.
func NewService(repo utilbill.Repository, catalog utilbill.RateClassCatalog, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("utilbill service: nil repository")
	}
	if catalog == nil {
		return nil, errors.New("utilbill service: nil rate class catalog")
	}
	s := &Service{
		repo:    repo,
		catalog: catalog,
		clock:   SystemClock{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) load(ctx context.Context, id string) (*utilbill.UtilBill, error) {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, fmt.Errorf("%w: %s", utilbill.ErrBillNotFound, id)
	}
	return bill, nil
}

// Create stores a new bill for accountID using the named rate class. When
// the account has an earlier bill its charge definitions are copied.
func (s *Service) Create(ctx context.Context, id, accountID, rateClass string, start, end time.Time) (*utilbill.UtilBill, error) {
	rc, err := s.catalog.Lookup(rateClass)
	if err != nil {
		return nil, err
	}
	bill, err := utilbill.NewUtilBill(id, accountID, rc, start, end)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if prev := latestBefore(existing, start); prev != nil {
		if err := bill.CopyChargesFrom(prev); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	s.logger.Info().Str("bill", id).Str("account", accountID).Str("rate_class", rc.Name).Msg("utility bill created")
	return bill, nil
}

// latestBefore returns the bill with the latest period start before start,
// or the last bill when start is zero.
func latestBefore(bills []*utilbill.UtilBill, start time.Time) *utilbill.UtilBill {
	var best *utilbill.UtilBill
	for _, b := range bills {
		if !start.IsZero() && !b.PeriodStart().Before(start) {
			continue
		}
		if best == nil || b.PeriodStart().After(best.PeriodStart()) {
			best = b
		}
	}
	return best
}

// ComputeCharges recomputes and saves a bill. Per-charge failures are kept on
// the charges; the first one is returned only when raise is set, after the
// bill is saved.
func (s *Service) ComputeCharges(ctx context.Context, id string, raise bool) (*utilbill.UtilBill, error) {
	start := s.clock.Now()
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	computeErr := bill.ComputeCharges(true)
	if computeErr != nil && errors.Is(computeErr, utilbill.ErrUnEditableBill) {
		metrics.ObserveChargeCompute(metrics.ResultError, time.Since(start))
		return nil, computeErr
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	s.recordCompute(ctx, bill, computeErr, start)
	if raise {
		return bill, computeErr
	}
	return bill, nil
}

func (s *Service) recordCompute(ctx context.Context, bill *utilbill.UtilBill, computeErr error, start time.Time) {
	failed := bill.ChargeErrors()
	result := metrics.ResultSuccess
	if len(failed) > 0 {
		result = metrics.ResultError
	}
	metrics.ObserveChargeCompute(result, time.Since(start))
	for _, c := range bill.Charges() {
		if !c.Failed() {
			continue
		}
		kind := metrics.ChargeErrorFormula
		if _, err := c.Identifiers(); formula.IsSyntaxError(err) {
			kind = metrics.ChargeErrorSyntax
		}
		metrics.IncChargeError(kind)
	}

	event := s.logger.Info()
	if computeErr != nil {
		event = s.logger.Warn().Err(computeErr)
	}
	event.Str("bill", bill.ID()).
		Int("charges", len(bill.Charges())).
		Int("failed", len(failed)).
		Float64("total", bill.TotalCharges()).
		Msg("utility bill charges computed")

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChargesComputed(ctx, ChargesComputed{
		BillID:     bill.ID(),
		AccountID:  bill.AccountID(),
		Total:      bill.TotalCharges(),
		Errors:     failed,
		OccurredAt: s.clock.Now(),
	}); err != nil {
		s.logger.Error().Err(err).Str("bill", bill.ID()).Msg("publish charges computed failed")
	}
}

// SetRegisterQuantity sets a register reading and recomputes.
func (s *Service) SetRegisterQuantity(ctx context.Context, id, binding string, quantity float64) (*utilbill.UtilBill, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bill.SetRegisterQuantity(binding, quantity); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	return s.ComputeCharges(ctx, id, false)
}

// AddCharge adds a charge and recomputes the bill.
func (s *Service) AddCharge(ctx context.Context, id string, spec utilbill.ChargeSpec) (*charges.Charge, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	added, err := bill.AddCharge(spec)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	bill, err = s.ComputeCharges(ctx, id, false)
	if err != nil {
		return nil, err
	}
	c, _ := bill.Charge(added.Binding)
	return c, nil
}

// UpdateCharge edits a charge and recomputes the bill.
func (s *Service) UpdateCharge(ctx context.Context, id, binding string, patch utilbill.ChargePatch) (*utilbill.UtilBill, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bill.UpdateCharge(binding, patch); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	return s.ComputeCharges(ctx, id, false)
}

// RemoveCharge deletes a charge and recomputes the bill.
func (s *Service) RemoveCharge(ctx context.Context, id, binding string) (*utilbill.UtilBill, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bill.RemoveCharge(binding); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	return s.ComputeCharges(ctx, id, false)
}

// SetRateClass switches the bill to the named rate class, which regenerates
// its registers, and recomputes.
func (s *Service) SetRateClass(ctx context.Context, id, name string) (*utilbill.UtilBill, error) {
	rc, err := s.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := bill.SetRateClass(rc); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	return s.ComputeCharges(ctx, id, false)
}

// SetProcessed locks or unlocks a bill. Locking recomputes first so the
// stored results are current.
func (s *Service) SetProcessed(ctx context.Context, id string, processed bool) (*utilbill.UtilBill, error) {
	bill, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if processed && bill.Editable() {
		if bill, err = s.ComputeCharges(ctx, id, true); err != nil {
			return nil, fmt.Errorf("%w: %w", utilbill.ErrNotProcessable, err)
		}
	}
	if err := bill.SetProcessed(processed); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, bill); err != nil {
		return nil, err
	}
	s.logger.Info().Str("bill", id).Bool("processed", processed).Msg("utility bill processed state changed")
	return bill, nil
}

// Get returns a bill.
func (s *Service) Get(ctx context.Context, id string) (*utilbill.UtilBill, error) {
	return s.load(ctx, id)
}
