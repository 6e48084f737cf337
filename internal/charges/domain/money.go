package charges

import "github.com/shopspring/decimal"

// RoundCents rounds to two decimal places, halves away from zero.
func RoundCents(amount float64) float64 {
	return decimal.NewFromFloat(amount).Round(2).InexactFloat64()
}

// ChargeTotal returns quantity*rate rounded to the cent. The product is taken
// in decimal so that values such as 1.005 do not round down through binary error.
func ChargeTotal(quantity, rate float64) float64 {
	return decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
}

// SumCents adds amounts exactly and rounds the sum to the cent.
func SumCents(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, amount := range amounts {
		sum = sum.Add(decimal.NewFromFloat(amount))
	}
	return sum.Round(2).InexactFloat64()
}
