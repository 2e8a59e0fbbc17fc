package stripe_signature

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// HeaderName is the request header carrying the provider signature.
const HeaderName = "Stripe-Signature"

var (
	ErrMissingSignature = errors.New("missing Stripe-Signature header")
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	errEmptySecret = errors.New("webhook secret is not configured")
)

// Verifier checks webhook signatures with stripe-go. It never implements the
// signing scheme itself.
type Verifier struct {
	tolerance time.Duration
}

// New returns a Verifier accepting signatures up to tolerance old.
// A zero tolerance uses the library default.
func New(tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{tolerance: tolerance}
}

// VerifySnapshot verifies payload and decodes it into a stripe.Event.
// API version mismatches are accepted; the event is decoded leniently.
// An empty secret never verifies.
func (v *Verifier) VerifySnapshot(payload []byte, header, secret string) (stripe.Event, error) {
	if header == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	if secret == "" {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, errEmptySecret)
	}
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// VerifyThin verifies a thin payload. Decoding is left to the caller since
// thin events are not stripe.Event values.
func (v *Verifier) VerifyThin(payload []byte, header, secret string) error {
	if header == "" {
		return ErrMissingSignature
	}
	if secret == "" {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, errEmptySecret)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, secret, v.tolerance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
