package interfaces

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"reebill/internal/reebill/application"
	utilbillapp "reebill/internal/utilbill/application"
)

// LoggingPublisher logs billing events.
type LoggingPublisher struct {
	logger zerolog.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger zerolog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

// PublishReeBillIssued logs the event.
func (p *LoggingPublisher) PublishReeBillIssued(ctx context.Context, event application.ReeBillIssued) error {
	_ = ctx
	if p == nil {
		return errors.New("reebill publisher: nil publisher")
	}
	p.logger.Info().
		Str("account", event.AccountID).
		Int("sequence", event.Sequence).
		Int("version", event.Version).
		Float64("ree_charge", event.ReeCharge).
		Float64("balance_due", event.BalanceDue).
		Str("due", event.DueDate.Format("2006-01-02")).
		Msg("reebill issued")
	return nil
}

// PublishChargesComputed logs the event.
func (p *LoggingPublisher) PublishChargesComputed(ctx context.Context, event utilbillapp.ChargesComputed) error {
	_ = ctx
	if p == nil {
		return errors.New("reebill publisher: nil publisher")
	}
	e := p.logger.Debug()
	if len(event.Errors) > 0 {
		e = p.logger.Warn().Interface("errors", event.Errors)
	}
	e.Str("bill", event.BillID).
		Str("account", event.AccountID).
		Float64("total", event.Total).
		Msg("utility bill charges computed")
	return nil
}
