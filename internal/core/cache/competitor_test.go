package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

type memRedis struct {
	mu      sync.Mutex
	data    map[string]string
	ttls    map[string]time.Duration
	readErr error
}

func newMemRedis() *memRedis {
	return &memRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return redis.NewStringResult("", m.readErr)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.(string)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *memRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	price decimal.Decimal
	ok    bool
	err   error
	gate  chan struct{}
}

func (s *countingSource) CompetitorPrice(ctx context.Context, productID, competitorID string) (decimal.Decimal, bool, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.price, s.ok, s.err
}

func TestCompetitorPrices_HitAndMiss(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	src := &countingSource{price: decimal.RequireFromString("95.50"), ok: true}
	c := NewCompetitorPrices(src, rdb, time.Minute, nil)

	for i := 0; i < 3; i++ {
		price, ok, err := c.CompetitorPrice(ctx, "p1", "acme")
		if err != nil || !ok || !price.Equal(decimal.RequireFromString("95.5")) {
			t.Fatalf("CompetitorPrice() = (%s, %v, %v), want (95.5, true, nil)", price, ok, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if rdb.ttls[competitorKey("p1", "acme")] != time.Minute {
		t.Errorf("ttl = %v, want 1m", rdb.ttls[competitorKey("p1", "acme")])
	}

	if err := c.Forget(ctx, "p1", "acme"); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if _, _, err := c.CompetitorPrice(ctx, "p1", "acme"); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Errorf("source calls after Forget = %d, want 2", src.calls)
	}
}

func TestCompetitorPrices_NotListedIsCached(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	src := &countingSource{}
	c := NewCompetitorPrices(src, rdb, 0, nil)

	for i := 0; i < 2; i++ {
		if _, ok, err := c.CompetitorPrice(ctx, "p1", "acme"); ok || err != nil {
			t.Fatalf("CompetitorPrice() = (ok %v, err %v), want (false, nil)", ok, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}
	if got := rdb.data[competitorKey("p1", "acme")]; got != notListed {
		t.Errorf("cached value = %q, want %q", got, notListed)
	}
	if rdb.ttls[competitorKey("p1", "acme")] != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL", rdb.ttls[competitorKey("p1", "acme")])
	}
}

func TestCompetitorPrices_SourceErrorNotCached(t *testing.T) {
	ctx := context.Background()
	rdb := newMemRedis()
	src := &countingSource{err: errors.New("feed down")}
	c := NewCompetitorPrices(src, rdb, time.Minute, nil)

	if _, _, err := c.CompetitorPrice(ctx, "p1", "acme"); err == nil {
		t.Fatal("CompetitorPrice() error = nil, want source error")
	}
	if len(rdb.data) != 0 {
		t.Errorf("cache = %v, want empty", rdb.data)
	}
}

func TestCompetitorPrices_RedisDownFallsThrough(t *testing.T) {
	rdb := newMemRedis()
	rdb.readErr = errors.New("connection refused")
	src := &countingSource{price: decimal.NewFromInt(10), ok: true}
	c := NewCompetitorPrices(src, rdb, time.Minute, nil)

	price, ok, err := c.CompetitorPrice(context.Background(), "p1", "acme")
	if err != nil || !ok || !price.Equal(decimal.NewFromInt(10)) {
		t.Errorf("CompetitorPrice() = (%s, %v, %v), want (10, true, nil)", price, ok, err)
	}
}

func TestCompetitorPrices_ConcurrentMissesCollapse(t *testing.T) {
	rdb := newMemRedis()
	src := &countingSource{price: decimal.NewFromInt(42), ok: true, gate: make(chan struct{})}
	c := NewCompetitorPrices(src, rdb, time.Minute, nil)

	const callers = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	started.Add(callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			if _, _, err := c.CompetitorPrice(context.Background(), "p1", "acme"); err != nil {
				t.Error(err)
			}
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	if src.calls < 1 || src.calls > callers {
		t.Fatalf("source calls = %d, want between 1 and %d", src.calls, callers)
	}
	if src.calls == callers {
		t.Errorf("source calls = %d, want concurrent misses collapsed", src.calls)
	}
}
