package interfaces

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"reebill/internal/audit"
	"reebill/internal/eventbus"
	"reebill/internal/reebill/application"
	reebill "reebill/internal/reebill/domain"
)

type issuedMetadata struct {
	ReeCharge  float64 `json:"ree_charge"`
	BalanceDue float64 `json:"balance_due"`
	DueDate    string  `json:"due_date"`
}

// SubscribeAudit records every issued reebill in the audit log. The entry id
// is the event id, so a replayed event maps to the same entry.
func SubscribeAudit(bus eventbus.Bus, log audit.Logger, actor string, logger zerolog.Logger) {
	eventbus.SubscribeTyped(bus, func(ctx context.Context, event application.ReeBillIssued) error {
		metadata, err := json.Marshal(issuedMetadata{
			ReeCharge:  event.ReeCharge,
			BalanceDue: event.BalanceDue,
			DueDate:    event.DueDate.Format("2006-01-02"),
		})
		if err != nil {
			return err
		}
		entry := audit.Entry{
			Actor:        actor,
			Action:       audit.ActionReeBillIssued,
			ResourceType: "reebill",
			ResourceID:   reebill.Key{AccountID: event.AccountID, Sequence: event.Sequence, Version: event.Version}.String(),
			AccountID:    event.AccountID,
			Metadata:     metadata,
			CreatedAt:    event.OccurredAt,
		}
		if env, ok := eventbus.EnvelopeFromContext(ctx); ok {
			entry.ID = env.EventID
		}
		if err := log.Log(ctx, entry); err != nil {
			logger.Error().Err(err).Str("reebill", entry.ResourceID).Msg("audit log failed")
			return err
		}
		return nil
	})
}
