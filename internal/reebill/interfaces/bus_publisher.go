package interfaces

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"reebill/internal/eventbus"
	"reebill/internal/reebill/application"
	utilbillapp "reebill/internal/utilbill/application"
)

// BusPublisher publishes billing events on an event bus.
type BusPublisher struct {
	bus eventbus.Bus
}

// NewBusPublisher constructs a publisher.
func NewBusPublisher(bus eventbus.Bus) (*BusPublisher, error) {
	if bus == nil {
		return nil, errors.New("bus publisher: nil bus")
	}
	return &BusPublisher{bus: bus}, nil
}

// PublishReeBillIssued publishes the event.
func (p *BusPublisher) PublishReeBillIssued(ctx context.Context, event application.ReeBillIssued) error {
	return p.bus.Publish(ctx, event)
}

// PublishChargesComputed publishes the event.
func (p *BusPublisher) PublishChargesComputed(ctx context.Context, event utilbillapp.ChargesComputed) error {
	return p.bus.Publish(ctx, event)
}

// Recomputer recomputes reebills built on a utility bill.
type Recomputer interface {
	RecomputeForUtilBill(ctx context.Context, accountID, utilBillID string) (int, error)
}

// SubscribeRecompute keeps unissued reebills current with their utility
// bills: every ChargesComputed event recomputes the reebills built on that
// bill. Failures are logged, not returned, so publishers are not failed by
// a reebill that cannot be computed yet.
func SubscribeRecompute(bus eventbus.Bus, recomputer Recomputer, logger zerolog.Logger) {
	eventbus.SubscribeTyped(bus, func(ctx context.Context, event utilbillapp.ChargesComputed) error {
		count, err := recomputer.RecomputeForUtilBill(ctx, event.AccountID, event.BillID)
		if err != nil {
			logger.Warn().Err(err).Str("utilbill", event.BillID).Msg("reebill recompute failed")
			return nil
		}
		if count > 0 {
			logger.Debug().Str("utilbill", event.BillID).Int("reebills", count).Msg("reebills recomputed")
		}
		return nil
	})
}
