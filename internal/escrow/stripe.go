package escrow

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeCoordinator implements Coordinator on manual-capture PaymentIntents:
// HoldFunds creates an intent, SettleFunds captures it, ReleaseFunds cancels
// the hold.
type StripeCoordinator struct {
	Currency string
}

// NewStripeCoordinator initializes the stripe client from the given API key.
func NewStripeCoordinator(apiKey, currency string) *StripeCoordinator {
	stripe.Key = apiKey
	if currency == "" {
		currency = "usd"
	}
	return &StripeCoordinator{Currency: currency}
}

func (s *StripeCoordinator) HoldFunds(ctx context.Context, reservationID string, amountCents int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(s.Currency),
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	params.AddMetadata("reservation_id", reservationID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", mapStripeErr(err)
	}
	return pi.ID, nil
}

func (s *StripeCoordinator) ReleaseFunds(ctx context.Context, holdID string) error {
	if _, err := paymentintent.Cancel(holdID, nil); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

func (s *StripeCoordinator) SettleFunds(ctx context.Context, holdID string, finalAmountCents int64) error {
	params := &stripe.PaymentIntentCaptureParams{}
	if finalAmountCents > 0 {
		params.AmountToCapture = stripe.Int64(finalAmountCents)
	}
	if _, err := paymentintent.Capture(holdID, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

// mapStripeErr folds stripe's error surface into the coordinator taxonomy so
// callers never import stripe types.
func mapStripeErr(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.DeclineCode == stripe.DeclineCodeInsufficientFunds:
		return fmt.Errorf("%w: %s", ErrInsufficientFunds, se.Msg)
	case se.Code == stripe.ErrorCodeCardDeclined,
		se.Code == stripe.ErrorCodeExpiredCard,
		se.Code == stripe.ErrorCodeIncorrectNumber:
		return fmt.Errorf("%w: %s", ErrPaymentMethodInvalid, se.Msg)
	case se.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", ErrHoldNotFound, se.Msg)
	}
	return err
}
