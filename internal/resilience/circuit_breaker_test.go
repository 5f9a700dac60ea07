package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/momo-mem/momo/internal/resilience"
	"github.com/momo-mem/momo/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ExecutePassesThroughSuccess(t *testing.T) {
	b := resilience.New("test")
	result, err := b.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := resilience.NewWithConfig("test", resilience.Config{MaxFailures: 2, Timeout: time.Hour, HalfOpenMaxSuccesses: 1})
	failing := func() (interface{}, error) { return nil, errors.New("boom") }

	_, _ = b.Execute(context.Background(), failing)
	_, _ = b.Execute(context.Background(), failing)

	_, err := b.Execute(context.Background(), func() (interface{}, error) {
		t.Fatal("fn must not run while circuit is open")
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrDependencyUnavailable)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_MetricsCountRequests(t *testing.T) {
	b := resilience.New("test")
	_, _ = b.Execute(context.Background(), func() (interface{}, error) { return 1, nil })
	_, _ = b.Execute(context.Background(), func() (interface{}, error) { return nil, errors.New("fail") })

	m := b.Metrics()
	assert.Equal(t, uint64(2), m.TotalRequests)
	assert.Equal(t, uint64(1), m.TotalSuccesses)
	assert.Equal(t, uint64(1), m.TotalFailures)
}
