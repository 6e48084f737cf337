package reebill

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	charges "reebill/internal/charges/domain"
)

// Payment is money received from a customer.
type Payment struct {
	ID           uuid.UUID
	AccountID    string
	DateReceived time.Time
	Credit       float64
	Description  string
}

// NewPayment validates and creates a payment with a random id.
func NewPayment(accountID string, received time.Time, credit float64, description string) (Payment, error) {
	if accountID == "" {
		return Payment{}, ErrEmptyAccountID
	}
	if received.IsZero() {
		return Payment{}, fmt.Errorf("%w: zero date received", ErrInvalidPayment)
	}
	if err := checkAmount(credit); err != nil {
		return Payment{}, err
	}
	return Payment{
		ID:           uuid.New(),
		AccountID:    accountID,
		DateReceived: received.UTC(),
		Credit:       credit,
		Description:  description,
	}, nil
}

// SumCredits totals payments received in [from, to). A zero from means no
// lower bound.
func SumCredits(payments []Payment, from, to time.Time) float64 {
	credits := make([]float64, 0, len(payments))
	for _, p := range payments {
		if !from.IsZero() && p.DateReceived.Before(from) {
			continue
		}
		if !p.DateReceived.Before(to) {
			continue
		}
		credits = append(credits, p.Credit)
	}
	return charges.SumCents(credits...)
}
