package catalog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fabriguespe/xmtp-faucet-bot/internal/kv"
	"github.com/fabriguespe/xmtp-faucet-bot/internal/metrics"
	"github.com/fabriguespe/xmtp-faucet-bot/pkg/models"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var testNetworks = []models.Network{
	{NetworkID: "base_sepolia", NetworkName: "Base Sepolia", NetworkLogo: "logo.png", TokenName: "TST", DripAmount: "10", Balance: "3"},
	{NetworkID: "sepolia", NetworkName: "Sepolia", TokenName: "ETH", DripAmount: "0.05", Balance: "0"},
	{NetworkID: "amoy", NetworkName: "Polygon Amoy", TokenName: "POL", DripAmount: "0.5", Balance: "1.25"},
}

type fakeFetcher struct {
	networks []models.Network
	err      error
	calls    atomic.Int32
	gate     chan struct{}
}

func (f *fakeFetcher) GetNetworks(ctx context.Context) ([]models.Network, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.networks, nil
}

type failingStore struct {
	kv.Store
	getErr error
	setErr error
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key, value string) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, key, value)
}

// CacheSuite is a test suite for the catalog cache.
type CacheSuite struct {
	suite.Suite
	store   *kv.MemoryStore
	fetcher *fakeFetcher
	now     time.Time
	cache   *Cache
}

func (s *CacheSuite) SetupTest() {
	s.store = kv.NewMemoryStore()
	s.fetcher = &fakeFetcher{networks: testNetworks}
	s.now = time.UnixMilli(1_700_000_000_000)
	s.cache = New(s.store, s.fetcher, WithClock(func() time.Time { return s.now }))
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func (s *CacheSuite) putRecord(rec models.CatalogRecord) {
	data, err := json.Marshal(rec)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Set(context.Background(), CacheKey, string(data)))
}

func (s *CacheSuite) storedRecord() models.CatalogRecord {
	raw, ok, err := s.store.Get(context.Background(), CacheKey)
	s.Require().NoError(err)
	s.Require().True(ok)

	var rec models.CatalogRecord
	s.Require().NoError(json.Unmarshal([]byte(raw), &rec))
	return rec
}

// TestMissingSnapshotFetchesAndStores tests the first lookup.
func (s *CacheSuite) TestMissingSnapshotFetchesAndStores() {
	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(testNetworks, got)
	s.Equal(int32(1), s.fetcher.calls.Load())

	rec := s.storedRecord()
	s.Equal(s.now.UnixMilli(), rec.LastSyncedAt)
	s.Equal(testNetworks, rec.SupportedNetworks)
}

// TestFreshSnapshotIsReused tests that a stored snapshot avoids the service.
func (s *CacheSuite) TestFreshSnapshotIsReused() {
	_, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.now = s.now.Add(time.Minute)
	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(testNetworks, got)
	s.Equal(int32(1), s.fetcher.calls.Load())
}

// TestRoundTripPreservesOrder tests that a stored snapshot reads back unchanged.
func (s *CacheSuite) TestRoundTripPreservesOrder() {
	reversed := []models.Network{testNetworks[2], testNetworks[0], testNetworks[1]}
	s.putRecord(models.CatalogRecord{LastSyncedAt: s.now.UnixMilli(), SupportedNetworks: reversed})

	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(reversed, got)
	s.Zero(s.fetcher.calls.Load())
}

// TestOldSnapshotIsReused documents the inverted freshness check: a snapshot
// synced long ago is still served. This is likely a bug in the policy and is
// kept on purpose until the intended behaviour is confirmed.
func (s *CacheSuite) TestOldSnapshotIsReused() {
	old := []models.Network{testNetworks[1]}
	s.putRecord(models.CatalogRecord{
		LastSyncedAt:      s.now.Add(-24 * time.Hour).UnixMilli(),
		SupportedNetworks: old,
	})

	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(old, got)
	s.Zero(s.fetcher.calls.Load())
}

// TestFutureSnapshotIsRefreshed tests the only case the freshness check treats as stale.
func (s *CacheSuite) TestFutureSnapshotIsRefreshed() {
	s.putRecord(models.CatalogRecord{
		LastSyncedAt:      s.now.Add(StaleAfter + time.Millisecond).UnixMilli(),
		SupportedNetworks: []models.Network{testNetworks[1]},
	})

	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(testNetworks, got)
	s.Equal(int32(1), s.fetcher.calls.Load())
	s.Equal(s.now.UnixMilli(), s.storedRecord().LastSyncedAt)
}

// TestUndecodableSnapshotIsRefreshed tests that garbage in the store is replaced.
func (s *CacheSuite) TestUndecodableSnapshotIsRefreshed() {
	s.Require().NoError(s.store.Set(context.Background(), CacheKey, "{not json"))

	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)

	s.Equal(testNetworks, got)
	s.Equal(testNetworks, s.storedRecord().SupportedNetworks)
}

// TestFetchFailure tests that a failed refresh reports ErrCatalogUnavailable and writes nothing.
func (s *CacheSuite) TestFetchFailure() {
	svcErr := errors.New("connection refused")
	s.fetcher.err = svcErr

	_, err := s.cache.Networks(context.Background())
	s.Require().Error(err)
	s.ErrorIs(err, ErrCatalogUnavailable)
	s.ErrorIs(err, svcErr)

	_, ok, getErr := s.store.Get(context.Background(), CacheKey)
	s.NoError(getErr)
	s.False(ok)
}

// TestFetchFailureKeepsStaleSnapshot tests that a failed refresh leaves the old record in place.
func (s *CacheSuite) TestFetchFailureKeepsStaleSnapshot() {
	future := models.CatalogRecord{
		LastSyncedAt:      s.now.Add(time.Hour).UnixMilli(),
		SupportedNetworks: []models.Network{testNetworks[0]},
	}
	s.putRecord(future)
	s.fetcher.err = errors.New("boom")

	_, err := s.cache.Networks(context.Background())
	s.ErrorIs(err, ErrCatalogUnavailable)
	s.Equal(future, s.storedRecord())
}

// TestEmptyCatalog tests that an empty service answer is cached as an empty list.
func (s *CacheSuite) TestEmptyCatalog() {
	s.fetcher.networks = nil

	got, err := s.cache.Networks(context.Background())
	s.Require().NoError(err)
	s.NotNil(got)
	s.Empty(got)

	got, err = s.cache.Networks(context.Background())
	s.Require().NoError(err)
	s.NotNil(got)
	s.Equal(int32(1), s.fetcher.calls.Load())
}

func TestIsStale(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name     string
		syncedAt time.Time
		want     bool
	}{
		{name: "just written", syncedAt: now, want: false},
		{name: "an hour old", syncedAt: now.Add(-time.Hour), want: false},
		{name: "exactly window ahead", syncedAt: now.Add(StaleAfter), want: false},
		{name: "past window ahead", syncedAt: now.Add(StaleAfter + time.Millisecond), want: true},
		{name: "far future", syncedAt: now.Add(24 * time.Hour), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.CatalogRecord{LastSyncedAt: tt.syncedAt.UnixMilli()}
			assert.Equal(t, tt.want, IsStale(rec, now))
		})
	}
}

func TestStoreReadFailure(t *testing.T) {
	store := &failingStore{Store: kv.NewMemoryStore(), getErr: errors.New("redis down")}
	fetcher := &fakeFetcher{networks: testNetworks}

	_, err := New(store, fetcher).Networks(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Zero(t, fetcher.calls.Load())
}

func TestStoreWriteFailureStillServes(t *testing.T) {
	store := &failingStore{Store: kv.NewMemoryStore(), setErr: errors.New("read only replica")}
	fetcher := &fakeFetcher{networks: testNetworks}

	got, err := New(store, fetcher).Networks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testNetworks, got)
}

func TestConcurrentRefreshesShareFetch(t *testing.T) {
	fetcher := &fakeFetcher{networks: testNetworks, gate: make(chan struct{})}
	cache := New(kv.NewMemoryStore(), fetcher)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]models.Network, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := cache.Refresh(context.Background())
			assert.NoError(t, err)
			results[i] = got
		}(i)
	}

	require.Eventually(t, func() bool { return fetcher.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	assert.LessOrEqual(t, fetcher.calls.Load(), int32(callers))
	for _, got := range results {
		assert.Equal(t, testNetworks, got)
	}
}

// ctxFetcher blocks until released and fails if its own context ends first.
type ctxFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (f *ctxFetcher) GetNetworks(ctx context.Context) ([]models.Network, error) {
	if f.calls.Add(1) == 1 {
		close(f.started)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.release:
		return testNetworks, nil
	}
}

func TestCancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	fetcher := &ctxFetcher{started: make(chan struct{}), release: make(chan struct{})}
	store := kv.NewMemoryStore()
	cache := New(store, fetcher)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.Refresh(firstCtx)
		firstErr <- err
	}()
	<-fetcher.started

	type result struct {
		networks []models.Network
		err      error
	}
	second := make(chan result, 1)
	go func() {
		got, err := cache.Refresh(context.Background())
		second <- result{got, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrCatalogUnavailable)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(fetcher.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, testNetworks, res.networks)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}

	// The shared fetch completed and stored the snapshot despite the cancellation.
	require.Eventually(t, func() bool {
		_, ok, err := store.Get(context.Background(), CacheKey)
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New()
	fetcher := &fakeFetcher{networks: testNetworks}
	cache := New(kv.NewMemoryStore(), fetcher, WithMetrics(m))

	_, err := cache.Networks(context.Background())
	require.NoError(t, err)
	_, err = cache.Networks(context.Background())
	require.NoError(t, err)

	fetcher.err = errors.New("boom")
	_, err = cache.Refresh(context.Background())
	require.Error(t, err)

	// One series each for cache, refresh and error.
	assert.Equal(t, 3, testutil.CollectAndCount(m.Registry(), "faucetbot_catalog_lookups_total"))
}
