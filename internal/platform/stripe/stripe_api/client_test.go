package stripe_api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSubscription_NotConfigured(t *testing.T) {
	_, err := New("").GetSubscription(context.Background(), "sub_1")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestGetSubscription_EmptyID(t *testing.T) {
	_, err := New("sk_test_123").GetSubscription(context.Background(), "")
	require.Error(t, err)
}
