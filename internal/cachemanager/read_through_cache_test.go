package cachemanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockCacheManager is a testify mock of CacheManager.
type mockCacheManager[K comparable, V any] struct {
	mock.Mock
}

func newMockCacheManager[K comparable, V any](t *testing.T) *mockCacheManager[K, V] {
	m := &mockCacheManager[K, V]{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *mockCacheManager[K, V]) Get(ctx context.Context, key K) (V, bool) {
	args := m.Called(ctx, key)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(V), args.Bool(1)
}

func (m *mockCacheManager[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) {
	m.Called(ctx, key, value, ttl)
}

func (m *mockCacheManager[K, V]) Delete(ctx context.Context, keys ...K) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockCacheManager[K, V]) Flush(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type artifactInput struct {
	Path string
}

func loadFrom(calls *atomic.Int32) func(context.Context, artifactInput) (*parsedArtifact, error) {
	return func(_ context.Context, in artifactInput) (*parsedArtifact, error) {
		calls.Add(1)
		return &parsedArtifact{Name: in.Path}, nil
	}
}

func TestReadThroughCache_Get_WithCacheDisabled(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	var calls atomic.Int32

	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](managerMock, loadFrom(&calls), true)

	got, err := rtc.Get(context.Background(), "key", artifactInput{Path: "FeeChainNFT.json"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, &parsedArtifact{Name: "FeeChainNFT.json"}, got)
	require.Equal(t, int32(1), calls.Load())
	managerMock.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefresh_WithCacheDisabled(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	var calls atomic.Int32

	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](managerMock, loadFrom(&calls), true)

	_, err := rtc.GetWithRefresh(context.Background(), "key", artifactInput{Path: "a"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestReadThroughCache_Get_WithValueInCache(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	cached := &parsedArtifact{Name: "cached"}
	managerMock.On("Get", mock.Anything, "key").Return(cached, true).Once()
	var calls atomic.Int32

	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](managerMock, loadFrom(&calls), false)

	got, err := rtc.Get(context.Background(), "key", artifactInput{Path: "a"}, time.Minute)
	require.NoError(t, err)
	require.Same(t, cached, got)
	require.Zero(t, calls.Load(), "loader must not run on a hit")
}

func TestReadThroughCache_Get_EmptyCache(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	managerMock.On("Get", mock.Anything, "key").Return((*parsedArtifact)(nil), false).Twice()
	managerMock.On("Set", mock.Anything, "key", &parsedArtifact{Name: "a"}, time.Minute).Return().Once()
	var calls atomic.Int32

	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](managerMock, loadFrom(&calls), false)

	got, err := rtc.Get(context.Background(), "key", artifactInput{Path: "a"}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, &parsedArtifact{Name: "a"}, got)
	require.Equal(t, int32(1), calls.Load())
}

func TestReadThroughCache_Get_LoaderError(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	managerMock.On("Get", mock.Anything, "key").Return((*parsedArtifact)(nil), false).Twice()

	boom := errors.New("artifact not found")
	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](
		managerMock,
		func(context.Context, artifactInput) (*parsedArtifact, error) { return nil, boom },
		false,
	)

	_, err := rtc.Get(context.Background(), "key", artifactInput{}, time.Minute)
	require.ErrorIs(t, err, boom)
	managerMock.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReadThroughCache_GetWithRefresh_WithValueInCache(t *testing.T) {
	managerMock := newMockCacheManager[string, *parsedArtifact](t)
	cached := &parsedArtifact{Name: "cached"}
	managerMock.On("GetWithRefresh", mock.Anything, "key", time.Hour).Return(cached, true).Once()
	var calls atomic.Int32

	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](managerMock, loadFrom(&calls), false)

	got, err := rtc.GetWithRefresh(context.Background(), "key", artifactInput{}, time.Hour)
	require.NoError(t, err)
	require.Same(t, cached, got)
	require.Zero(t, calls.Load())
}

func TestReadThroughCache_ConcurrentMissesLoadOnce(t *testing.T) {
	cache := NewInMemoryCacheManager[string, *parsedArtifact]("artifacts", DefaultExpiration, DefaultCleanupInterval)
	var calls atomic.Int32
	rtc := NewReadThroughCache[string, *parsedArtifact, artifactInput](cache, loadFrom(&calls), false)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rtc.Get(context.Background(), "FeeChainNFT", artifactInput{Path: "FeeChainNFT"}, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), calls.Load(), "concurrent misses should share one load")
}
