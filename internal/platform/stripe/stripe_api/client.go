package stripe_api

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v83"
)

var ErrNotConfigured = errors.New("stripe api key is not configured")

// SubscriptionFetcher retrieves the authoritative subscription from the provider.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
}

type Client struct {
	sc *stripe.Client
}

// New returns a client for apiKey. An empty key yields a client whose calls
// fail with ErrNotConfigured, so the service still starts without credentials.
func New(apiKey string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	return &Client{sc: stripe.NewClient(apiKey)}
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if c.sc == nil {
		return nil, ErrNotConfigured
	}
	if id == "" {
		return nil, errors.New("subscription id is empty")
	}
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieve subscription %s: %w", id, err)
	}
	return sub, nil
}
