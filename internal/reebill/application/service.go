package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"reebill/internal/observability/metrics"
	reebill "reebill/internal/reebill/domain"
	utilbill "reebill/internal/utilbill/domain"
)

// ReeBillIssued is emitted for every issued reebill version.
type ReeBillIssued struct {
	AccountID  string
	Sequence   int
	Version    int
	ReeCharge  float64
	BalanceDue float64
	DueDate    time.Time
	OccurredAt time.Time
}

// Publisher emits reebill events.
type Publisher interface {
	PublishReeBillIssued(ctx context.Context, event ReeBillIssued) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Rates are the defaults for an account's first reebill.
type Rates struct {
	Discount   float64
	LateCharge float64
}

// Service handles reebill use cases.
type Service struct {
	bills     reebill.Repository
	utilBills utilbill.Repository
	payments  reebill.PaymentRepository
	renewable reebill.RenewableEnergySource
	publisher Publisher
	clock     Clock
	logger    zerolog.Logger
	rates     Rates
	workers   int
}

// Option configures a Service.
type Option func(*Service)

// WithRenewableSource sets where renewable energy readings come from.
func WithRenewableSource(src reebill.RenewableEnergySource) Option {
	return func(s *Service) { s.renewable = src }
}

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

// WithRates sets the default rates of first bills.
func WithRates(r Rates) Option {
	return func(s *Service) { s.rates = r }
}

// WithWorkers bounds ComputeAll concurrency.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// NewService constructs the service.
func NewService(bills reebill.Repository, utilBills utilbill.Repository, payments reebill.PaymentRepository, opts ...Option) (*Service, error) {
	if bills == nil {
		return nil, errors.New("reebill service: nil reebill repository")
	}
	if utilBills == nil {
		return nil, errors.New("reebill service: nil utility bill repository")
	}
	if payments == nil {
		return nil, errors.New("reebill service: nil payment repository")
	}
	s := &Service{
		bills:     bills,
		utilBills: utilBills,
		payments:  payments,
		clock:     SystemClock{},
		logger:    zerolog.Nop(),
		workers:   1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) loadUtilBill(ctx context.Context, id string) (*utilbill.UtilBill, error) {
	ub, err := s.utilBills.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ub == nil {
		return nil, fmt.Errorf("%w: %s", utilbill.ErrBillNotFound, id)
	}
	return ub, nil
}

// loadLatest returns the latest version of a sequence with its utility bill
// attached.
func (s *Service) loadLatest(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	rb, err := s.bills.GetLatest(ctx, accountID, sequence)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		return nil, fmt.Errorf("%w: %s sequence %d", reebill.ErrReeBillNotFound, accountID, sequence)
	}
	ub, err := s.loadUtilBill(ctx, rb.UtilBillID())
	if err != nil {
		return nil, err
	}
	if err := rb.AttachUtilBill(ub); err != nil {
		return nil, err
	}
	return rb, nil
}

// latestIssued returns the highest issued version of a sequence, or nil.
func latestIssued(versions []*reebill.ReeBill, sequence int) *reebill.ReeBill {
	var out *reebill.ReeBill
	for _, v := range versions {
		if v.Sequence() == sequence && v.Issued() {
			out = v
		}
	}
	return out
}

// CreateNext creates the next reebill of an account from a utility bill.
// Rates are inherited from the previous bill.
func (s *Service) CreateNext(ctx context.Context, accountID, utilBillID string) (*reebill.ReeBill, error) {
	ub, err := s.loadUtilBill(ctx, utilBillID)
	if err != nil {
		return nil, err
	}
	if ub.AccountID() != accountID {
		return nil, fmt.Errorf("%w: utility bill %s belongs to %s", reebill.ErrUtilBillMismatch, utilBillID, ub.AccountID())
	}
	last, err := s.bills.LastSequence(ctx, accountID)
	if err != nil {
		return nil, err
	}
	rates := s.rates
	if last > 0 {
		prev, err := s.bills.GetLatest(ctx, accountID, last)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			rates = Rates{Discount: prev.DiscountRate(), LateCharge: prev.LateChargeRate()}
		}
	}
	rb, err := reebill.NewReeBill(accountID, last+1, ub, rates.Discount, rates.LateCharge)
	if err != nil {
		return nil, err
	}
	if err := s.bills.Save(ctx, rb); err != nil {
		return nil, err
	}
	s.logger.Info().Str("account", accountID).Int("sequence", last+1).Str("utilbill", utilBillID).Msg("reebill created")
	return rb, nil
}

// SetRenewableQuantity records renewable energy for one register of the
// latest version and recomputes it.
func (s *Service) SetRenewableQuantity(ctx context.Context, accountID string, sequence int, registerBinding string, quantity float64) (*reebill.ReeBill, error) {
	rb, err := s.loadLatest(ctx, accountID, sequence)
	if err != nil {
		return nil, err
	}
	if err := rb.SetRenewableQuantity(registerBinding, quantity); err != nil {
		return nil, err
	}
	if err := s.bills.Save(ctx, rb); err != nil {
		return nil, err
	}
	return s.Compute(ctx, accountID, sequence)
}

// Compute refreshes the latest version of a sequence: readings follow the
// utility bill registers (keeping renewable quantities of registers that
// remain, overridden by the renewable source), charges are recomputed and
// the balance is taken from the account history.
func (s *Service) Compute(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	start := time.Now()
	rb, err := s.compute(ctx, accountID, sequence)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
		s.logger.Warn().Err(err).Str("account", accountID).Int("sequence", sequence).Msg("reebill compute failed")
	}
	metrics.ObserveReeBillCompute(result, time.Since(start))
	return rb, err
}

func (s *Service) compute(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	rb, err := s.loadLatest(ctx, accountID, sequence)
	if err != nil {
		return nil, err
	}
	if err := s.refreshReadings(ctx, rb); err != nil {
		return nil, err
	}
	if err := rb.ComputeCharges(); err != nil {
		return nil, err
	}
	accounting, err := s.accounting(ctx, rb)
	if err != nil {
		return nil, err
	}
	if err := rb.ApplyAccounting(accounting); err != nil {
		return nil, err
	}
	if rb.UtilBill().Editable() {
		if err := s.utilBills.Save(ctx, rb.UtilBill()); err != nil {
			return nil, err
		}
	}
	if err := s.bills.Save(ctx, rb); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("account", accountID).
		Int("sequence", sequence).
		Int("version", rb.Version()).
		Float64("ree_value", rb.ReeValue()).
		Float64("ree_charge", rb.ReeCharge()).
		Float64("balance_due", rb.BalanceDue()).
		Msg("reebill computed")
	return rb, nil
}

func (s *Service) refreshReadings(ctx context.Context, rb *reebill.ReeBill) error {
	kept := make(map[string]float64)
	for _, rd := range rb.Readings() {
		kept[rd.RegisterBinding] = rd.RenewableQuantity
	}
	if err := rb.ReplaceReadingsFromUtilBill(); err != nil {
		return err
	}
	bindings := make([]string, 0, len(rb.Readings()))
	for _, rd := range rb.Readings() {
		bindings = append(bindings, rd.RegisterBinding)
		if q, ok := kept[rd.RegisterBinding]; ok {
			if err := rb.SetRenewableQuantity(rd.RegisterBinding, q); err != nil {
				return err
			}
		}
	}
	if s.renewable == nil {
		return nil
	}
	ub := rb.UtilBill()
	measured, err := s.renewable.RenewableEnergy(ctx, rb.AccountID(), ub.PeriodStart(), ub.PeriodEnd(), bindings)
	if err != nil {
		return fmt.Errorf("renewable energy: %w", err)
	}
	for binding, q := range measured {
		if err := rb.SetRenewableQuantity(binding, q); err != nil {
			return err
		}
	}
	return nil
}

// accounting derives the balance inputs of rb. The prior balance is the
// balance due of the predecessor's latest issued version; payments are those
// received since that version was issued. An original bill also carries the
// adjustments of pending corrections, which are issued with it.
func (s *Service) accounting(ctx context.Context, rb *reebill.ReeBill) (reebill.Accounting, error) {
	versions, err := s.bills.ListByAccount(ctx, rb.AccountID())
	if err != nil {
		return reebill.Accounting{}, err
	}
	now := s.clock.Now()
	var a reebill.Accounting

	if pred := latestIssued(versions, rb.Sequence()-1); pred != nil {
		payments, err := s.payments.ListReceived(ctx, rb.AccountID(), pred.IssueDate(), now)
		if err != nil {
			return reebill.Accounting{}, err
		}
		a.PriorBalance = pred.BalanceDue()
		a.PaymentReceived = reebill.SumCredits(payments, pred.IssueDate(), now)
		a.LateChargeApplies = now.After(pred.DueDate()) && a.PaymentReceived < a.PriorBalance
	}

	if rb.Version() == 0 {
		for _, c := range pendingCorrections(versions, rb.Sequence()) {
			a.TotalAdjustment += correctionAdjustment(versions, c)
		}
	}
	return a, nil
}

// pendingCorrections returns unissued, computed corrections of sequences
// other than exclude.
func pendingCorrections(versions []*reebill.ReeBill, exclude int) []*reebill.ReeBill {
	var out []*reebill.ReeBill
	for _, v := range versions {
		if v.Version() > 0 && !v.Issued() && v.Computed() && v.Sequence() != exclude {
			out = append(out, v)
		}
	}
	return out
}

func correctionAdjustment(versions []*reebill.ReeBill, correction *reebill.ReeBill) float64 {
	for _, v := range versions {
		if v.Sequence() == correction.Sequence() && v.Version() == correction.Version()-1 {
			return reebill.CorrectionAdjustment(v, correction)
		}
	}
	return 0
}

// Issue issues the latest version of a sequence. Issuing an original also
// issues every pending correction of the account. The utility bill is
// marked processed when it can be.
func (s *Service) Issue(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	rb, err := s.loadLatest(ctx, accountID, sequence)
	if err != nil {
		return nil, err
	}
	versions, err := s.bills.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var predecessor *reebill.ReeBill
	if rb.Version() == 0 && sequence > 1 {
		predecessor = latestIssued(versions, sequence-1)
	}
	if err := rb.Issue(now, predecessor); err != nil {
		return nil, err
	}

	var issued []*reebill.ReeBill
	if rb.Version() == 0 {
		for _, c := range pendingCorrections(versions, sequence) {
			if err := c.Issue(now, nil); err != nil {
				return nil, err
			}
			issued = append(issued, c)
		}
	}
	issued = append(issued, rb)

	ub := rb.UtilBill()
	if ub.Editable() && ub.IsProcessable() {
		if err := ub.SetProcessed(true); err != nil {
			return nil, err
		}
		if err := s.utilBills.Save(ctx, ub); err != nil {
			return nil, err
		}
	}

	for _, b := range issued {
		if err := s.bills.Save(ctx, b); err != nil {
			return nil, err
		}
		kind := metrics.IssueKindOriginal
		if b.Version() > 0 {
			kind = metrics.IssueKindCorrection
		}
		metrics.IncReeBillIssued(kind)
		s.logger.Info().Str("account", accountID).Int("sequence", b.Sequence()).Int("version", b.Version()).Msg("reebill issued")
		s.publishIssued(ctx, b, now)
	}
	return rb, nil
}

func (s *Service) publishIssued(ctx context.Context, rb *reebill.ReeBill, at time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishReeBillIssued(ctx, ReeBillIssued{
		AccountID:  rb.AccountID(),
		Sequence:   rb.Sequence(),
		Version:    rb.Version(),
		ReeCharge:  rb.ReeCharge(),
		BalanceDue: rb.BalanceDue(),
		DueDate:    rb.DueDate(),
		OccurredAt: at,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("reebill", rb.Key().String()).Msg("publish reebill issued failed")
	}
}

// CreateCorrection starts a new version of an issued sequence and computes
// it.
func (s *Service) CreateCorrection(ctx context.Context, accountID string, sequence int) (*reebill.ReeBill, error) {
	rb, err := s.loadLatest(ctx, accountID, sequence)
	if err != nil {
		return nil, err
	}
	correction, err := rb.NewVersion()
	if err != nil {
		return nil, err
	}
	if err := s.bills.Save(ctx, correction); err != nil {
		return nil, err
	}
	s.logger.Info().Str("account", accountID).Int("sequence", sequence).Int("version", correction.Version()).Msg("reebill correction created")
	return s.Compute(ctx, accountID, sequence)
}

// Get loads one version with its utility bill attached.
func (s *Service) Get(ctx context.Context, key reebill.Key) (*reebill.ReeBill, error) {
	rb, err := s.bills.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if rb == nil {
		return nil, fmt.Errorf("%w: %s", reebill.ErrReeBillNotFound, key)
	}
	ub, err := s.loadUtilBill(ctx, rb.UtilBillID())
	if err != nil {
		return nil, err
	}
	if err := rb.AttachUtilBill(ub); err != nil {
		return nil, err
	}
	return rb, nil
}

// AddPayment records a payment.
func (s *Service) AddPayment(ctx context.Context, accountID string, received time.Time, credit float64, description string) (reebill.Payment, error) {
	p, err := reebill.NewPayment(accountID, received, credit, description)
	if err != nil {
		return reebill.Payment{}, err
	}
	if err := s.payments.Add(ctx, p); err != nil {
		return reebill.Payment{}, err
	}
	return p, nil
}

// ComputeResult is the outcome of one bill in ComputeAll.
type ComputeResult struct {
	AccountID string
	Sequence  int
	Bill      *reebill.ReeBill
	Err       error
}

// Target names a bill to compute.
type Target struct {
	AccountID string
	Sequence  int
}

// PendingTargets lists the sequences of an account whose latest version is
// not issued, in sequence order.
func (s *Service) PendingTargets(ctx context.Context, accountID string) ([]Target, error) {
	versions, err := s.bills.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	latest := make(map[int]*reebill.ReeBill)
	for _, v := range versions {
		if cur, ok := latest[v.Sequence()]; !ok || v.Version() > cur.Version() {
			latest[v.Sequence()] = v
		}
	}
	var out []Target
	for seq, v := range latest {
		if !v.Issued() {
			out = append(out, Target{AccountID: accountID, Sequence: seq})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// ComputeAll computes bills concurrently. Each bill's failure is reported in
// its result; the returned error is only set when ctx ends first. Targets of
// the same account are computed in order since later bills read earlier ones.
func (s *Service) ComputeAll(ctx context.Context, targets []Target) ([]ComputeResult, error) {
	results := make([]ComputeResult, len(targets))
	byAccount := make(map[string][]int)
	var accounts []string
	for i, t := range targets {
		if _, ok := byAccount[t.AccountID]; !ok {
			accounts = append(accounts, t.AccountID)
		}
		byAccount[t.AccountID] = append(byAccount[t.AccountID], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, account := range accounts {
		indexes := byAccount[account]
		g.Go(func() error {
			for _, i := range indexes {
				if err := gctx.Err(); err != nil {
					return err
				}
				t := targets[i]
				rb, err := s.Compute(gctx, t.AccountID, t.Sequence)
				results[i] = ComputeResult{AccountID: t.AccountID, Sequence: t.Sequence, Bill: rb, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// RecomputeForUtilBill recomputes every editable reebill built on a utility
// bill. Issued and processed versions are skipped.
func (s *Service) RecomputeForUtilBill(ctx context.Context, accountID, utilBillID string) (int, error) {
	versions, err := s.bills.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	latest := make(map[int]*reebill.ReeBill)
	var sequences []int
	for _, v := range versions {
		if _, ok := latest[v.Sequence()]; !ok {
			sequences = append(sequences, v.Sequence())
		}
		latest[v.Sequence()] = v
	}
	count := 0
	for _, seq := range sequences {
		v := latest[seq]
		if v.UtilBillID() != utilBillID || v.Issued() || v.Processed() {
			continue
		}
		if _, err := s.Compute(ctx, accountID, seq); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
