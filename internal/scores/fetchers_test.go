package scores

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-overlay/internal/db"
	"github.com/joeblew999/plat-overlay/internal/logger"
)

func TestMockFetcherDeterministic(t *testing.T) {
	m := NewMockFetcher()
	req := NewRequest("co2", DefaultWindow(), time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))

	a, err := m.Fetch(context.Background(), req)
	require.NoError(t, err)
	b, err := m.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	require.Len(t, a, 5)

	for _, sc := range a {
		base := MunichBase()[sc.RegionID]
		if base == nil {
			assert.Nil(t, sc.Value, sc.RegionID)
			continue
		}
		require.NotNil(t, sc.Value)
		assert.InDelta(t, *base, *sc.Value, 20.5)
		assert.GreaterOrEqual(t, *sc.Value, 0.0)
		assert.LessOrEqual(t, *sc.Value, 100.0)
	}
}

func TestMockFetcherHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockFetcher().Fetch(ctx, FetchRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchErrorTimeout(t *testing.T) {
	err := error(&FetchError{DataSourceID: "co2", Err: context.DeadlineExceeded})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.Timeout())
	assert.Contains(t, err.Error(), "co2")
}

func TestDuckDBFetcher(t *testing.T) {
	conn, err := db.Open(db.Config{})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx, conn))

	now := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	f := NewDuckDBFetcher(conn)
	require.NoError(t, f.Ingest(ctx, []Observation{
		{SourceID: "co2", RegionID: "80331", ObservedAt: now.Add(-2 * time.Hour), Value: Float(40)},
		{SourceID: "co2", RegionID: "80331", ObservedAt: now.Add(-1 * time.Hour), Value: Float(60)},
		{SourceID: "co2", RegionID: "80331", ObservedAt: now.Add(-72 * time.Hour), Value: Float(100)},
		{SourceID: "co2", RegionID: "80335", ObservedAt: now.Add(-1 * time.Hour)},
		{SourceID: "price", RegionID: "80331", ObservedAt: now.Add(-1 * time.Hour), Value: Float(5)},
	}))

	req := NewRequest("co2", Window{Range: Range24h, Interval: Interval1h}, now)
	got, err := f.Fetch(ctx, req)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "80331", got[0].RegionID)
	require.NotNil(t, got[0].Value)
	assert.InDelta(t, 50, *got[0].Value, 1e-9)
	assert.Equal(t, "80335", got[1].RegionID)
	assert.Nil(t, got[1].Value)

	all, err := f.Fetch(ctx, NewRequest("co2", Window{Range: RangeAll, Interval: Interval1y, AsOf: now.AddDate(1, 0, 0)}, now))
	require.NoError(t, err)
	assert.InDelta(t, 200.0/3, *all[0].Value, 1e-9)
}

func TestParseCSV(t *testing.T) {
	obs, err := ParseCSV(strings.NewReader(`source_id,region_id,observed_at,value
co2,80331,2026-03-15T09:00:00Z,42.5
co2,80335,2026-03-15T09:00:00Z,
`))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 42.5, *obs[0].Value)
	assert.Nil(t, obs[1].Value)

	_, err = ParseCSV(strings.NewReader("co2,80331,yesterday,1\n"))
	assert.Error(t, err)
}

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return b, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func TestCachedFetcherServesFromCache(t *testing.T) {
	var calls atomic.Int32
	upstream := FetcherFunc(func(context.Context, FetchRequest) ([]RegionScore, error) {
		calls.Add(1)
		return []RegionScore{{RegionID: "80331", Value: Float(55)}, {RegionID: "80335"}}, nil
	})
	c := NewCachedFetcher(upstream, &memKV{data: map[string][]byte{}}, time.Minute, logger.Discard())
	req := NewRequest("co2", DefaultWindow(), time.Now())

	first, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	second, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Nil(t, second[1].Value)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedFetcherFallsThroughOnRedisError(t *testing.T) {
	client := OpenRedis("127.0.0.1:1", "", 0)
	defer client.Close()

	upstream := FetcherFunc(func(context.Context, FetchRequest) ([]RegionScore, error) {
		return []RegionScore{{RegionID: "80331", Value: Float(25)}}, nil
	})
	c := NewCachedFetcher(upstream, RedisKV{Client: client}, time.Minute, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := c.Fetch(ctx, NewRequest("co2", DefaultWindow(), time.Now()))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCachedFetcherPropagatesUpstreamError(t *testing.T) {
	boom := errors.New("boom")
	c := NewCachedFetcher(FetcherFunc(func(context.Context, FetchRequest) ([]RegionScore, error) {
		return nil, boom
	}), &memKV{data: map[string][]byte{}}, time.Minute, logger.Discard())

	_, err := c.Fetch(context.Background(), NewRequest("co2", DefaultWindow(), time.Now()))
	assert.ErrorIs(t, err, boom)
}

func TestOpenRedisEmptyAddr(t *testing.T) {
	assert.Nil(t, OpenRedis("", "", 0))
}

func TestCachedFetcherSurvivesFirstCallerCancel(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	upstream := FetcherFunc(func(ctx context.Context, _ FetchRequest) ([]RegionScore, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return []RegionScore{{RegionID: "80331", Value: Float(55)}}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	c := NewCachedFetcher(upstream, &memKV{data: map[string][]byte{}}, time.Minute, logger.Discard())
	req := NewRequest("co2", DefaultWindow(), time.Now())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Fetch(firstCtx, req)
		firstErr <- err
	}()
	<-entered
	cancelFirst()

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	type result struct {
		scores []RegionScore
		err    error
	}
	second := make(chan result, 1)
	go func() {
		got, err := c.Fetch(context.Background(), req)
		second <- result{got, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case r := <-second:
		require.NoError(t, r.err)
		require.Len(t, r.scores, 1)
		assert.Equal(t, "80331", r.scores[0].RegionID)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), calls.Load())
}
