package eligibility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docgate/internal/infrastructure/cache"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Eligible(ctx context.Context, userID, docType string) ([]string, error) {
	args := m.Called(ctx, userID, docType)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *mockProvider) IsEligible(ctx context.Context, userID, docType, id string) (bool, error) {
	args := m.Called(ctx, userID, docType, id)
	return args.Bool(0), args.Error(1)
}

func newCached(t *testing.T, next Provider) *Cached {
	t.Helper()
	sets := cache.NewLRU[[]string]("test_eligibility_sets", 64)
	points := cache.NewLRU[bool]("test_eligibility_points", 64)
	t.Cleanup(func() {
		sets.Stop()
		points.Stop()
	})
	return NewCached(next, sets, points, time.Minute)
}

func TestCached_EligibleHitsBackendOnce(t *testing.T) {
	ctx := context.Background()
	next := &mockProvider{}
	next.On("Eligible", ctx, "nurse@example.org", "batch").Return([]string{"id1", "id2"}, nil).Once()

	c := newCached(t, next)
	for i := 0; i < 3; i++ {
		ids, err := c.Eligible(ctx, "nurse@example.org", "batch")
		require.NoError(t, err)
		assert.Equal(t, []string{"id1", "id2"}, ids)
	}
	next.AssertExpectations(t)
}

func TestCached_InvalidateReloads(t *testing.T) {
	ctx := context.Background()
	next := &mockProvider{}
	next.On("Eligible", ctx, "u", "batch").Return([]string{"id1"}, nil).Once()
	next.On("Eligible", ctx, "u", "batch").Return([]string{"id1", "id2"}, nil).Once()
	next.On("IsEligible", ctx, "u", "batch", "id2").Return(false, nil).Once()
	next.On("IsEligible", ctx, "u", "batch", "id2").Return(true, nil).Once()

	c := newCached(t, next)

	ids, err := c.Eligible(ctx, "u", "batch")
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	ok, err := c.IsEligible(ctx, "u", "batch", "id2")
	require.NoError(t, err)
	assert.False(t, ok)

	c.Invalidate("u", "batch")

	ids, err = c.Eligible(ctx, "u", "batch")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	ok, err = c.IsEligible(ctx, "u", "batch", "id2")
	require.NoError(t, err)
	assert.True(t, ok)

	next.AssertExpectations(t)
}

func TestSetKey_EscapesUser(t *testing.T) {
	assert.NotEqual(t, SetKey("a/b", "c"), SetKey("a", "b/c"))
}
