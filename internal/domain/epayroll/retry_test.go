package epayroll

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyFixedBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	for attempt := 1; attempt <= 3; attempt++ {
		assert.Equal(t, 24*time.Hour, p.Delay(attempt), "attempt %d", attempt)
	}
}

func TestRetryPolicyExponentialBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour, Strategy: BackoffExponential}
	want := []time.Duration{time.Hour, 2 * time.Hour, 4 * time.Hour, 8 * time.Hour}
	for i, w := range want {
		assert.Equal(t, w, p.Delay(i+1), "attempt %d", i+1)
	}
}

func TestRetryPolicyNextRetryStopsAtCap(t *testing.T) {
	p := DefaultRetryPolicy()
	now := time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)

	next := p.NextRetry(1, now)
	require.NotNil(t, next)
	assert.True(t, next.Equal(now.Add(24*time.Hour)))
	assert.NotNil(t, p.NextRetry(2, now), "second failure still retries")
	assert.Nil(t, p.NextRetry(3, now), "no retry once the cap is reached")
	assert.True(t, p.Exhausted(3))
	assert.False(t, p.Exhausted(2))
}

func TestRetryPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultRetryPolicy().Validate())
	bad := []RetryPolicy{
		{MaxAttempts: 0, Backoff: time.Hour},
		{MaxAttempts: 3, Backoff: 0},
		{MaxAttempts: 3, Backoff: time.Hour, Strategy: "linear"},
	}
	for _, p := range bad {
		assert.Error(t, p.Validate(), "%+v", p)
	}
}
