package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkkkikiki/surveyreview/internal/apperr"
	"github.com/kkkkikiki/surveyreview/internal/logger"
	"github.com/kkkkikiki/surveyreview/internal/model"
	"github.com/kkkkikiki/surveyreview/internal/repository"
)

type memStore struct {
	mu       sync.Mutex
	shops    map[string]model.QuotaState
	failGet  error
	failList error
	failCAS  map[string]error
}

func newMemStore(states ...model.QuotaState) *memStore {
	s := &memStore{shops: map[string]model.QuotaState{}, failCAS: map[string]error{}}
	for _, st := range states {
		s.shops[st.ShopID] = st
	}
	return s
}

func (s *memStore) GetQuota(_ context.Context, id string) (*model.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	q, ok := s.shops[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &q, nil
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func (s *memStore) ApplyRollover(_ context.Context, id string, prev *time.Time, next model.QuotaState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failCAS[id]; err != nil {
		return false, err
	}
	q := s.shops[id]
	if !sameDate(q.ResetDate, prev) {
		return false, nil
	}
	q.Count = next.Count
	q.ResetDate = next.ResetDate
	s.shops[id] = q
	return true, nil
}

func (s *memStore) ConsumeQuota(_ context.Context, id string) (*model.QuotaState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.shops[id]
	if q.Count >= q.Limit {
		return nil, false, nil
	}
	q.Count++
	s.shops[id] = q
	return &q, true, nil
}

func (s *memStore) ReleaseQuota(_ context.Context, id string, resetDate *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.shops[id]
	if q.Count == 0 || !sameDate(q.ResetDate, resetDate) {
		return false, nil
	}
	q.Count--
	s.shops[id] = q
	return true, nil
}

func (s *memStore) ListDueForReset(_ context.Context, now time.Time, limit int) ([]model.QuotaState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList != nil {
		return nil, s.failList
	}
	var out []model.QuotaState
	for _, q := range s.shops {
		if Due(q, now) && len(out) < limit {
			out = append(out, q)
		}
	}
	return out, nil
}

func fixedNow(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestCheckAndMaybeReset(t *testing.T) {
	now := date(2025, time.March, 10)

	t.Run("allowed under limit", func(t *testing.T) {
		store := newMemStore(model.QuotaState{ShopID: "s1", Limit: 5, Count: 2, ResetDate: ptr(date(2025, time.April, 1))})
		g := NewGovernor(store, logger.Nop(), fixedNow(now))
		d, err := g.CheckAndMaybeReset(context.Background(), "s1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Remaining)
	})

	t.Run("rolls over lazily", func(t *testing.T) {
		store := newMemStore(model.QuotaState{ShopID: "s1", Limit: 5, Count: 5, ResetDate: ptr(date(2025, time.March, 1))})
		g := NewGovernor(store, logger.Nop(), fixedNow(now))
		d, err := g.CheckAndMaybeReset(context.Background(), "s1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 0, d.Count)
		assert.Equal(t, date(2025, time.April, 1), *store.shops["s1"].ResetDate)
	})

	t.Run("limit reached", func(t *testing.T) {
		store := newMemStore(model.QuotaState{ShopID: "s1", Limit: 5, Count: 5, ResetDate: ptr(date(2025, time.April, 1))})
		g := NewGovernor(store, logger.Nop(), fixedNow(now))
		d, err := g.CheckAndMaybeReset(context.Background(), "s1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Zero(t, d.Remaining)
	})

	t.Run("unknown shop", func(t *testing.T) {
		g := NewGovernor(newMemStore(), logger.Nop(), fixedNow(now))
		_, err := g.CheckAndMaybeReset(context.Background(), "nope")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("store failure fails closed", func(t *testing.T) {
		store := newMemStore()
		store.failGet = errors.New("connection refused")
		g := NewGovernor(store, logger.Nop(), fixedNow(now))
		d, err := g.CheckAndMaybeReset(context.Background(), "s1")
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
		assert.False(t, d.Allowed)
	})
}

func TestReserve(t *testing.T) {
	now := date(2025, time.March, 10)
	store := newMemStore(model.QuotaState{ShopID: "s1", Limit: 2, Count: 0, ResetDate: ptr(date(2025, time.April, 1))})
	g := NewGovernor(store, logger.Nop(), fixedNow(now))
	ctx := context.Background()

	d, err := g.Reserve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Remaining)

	d, err = g.Reserve(ctx, "s1")
	require.NoError(t, err)

	_, err = g.Reserve(ctx, "s1")
	assert.Equal(t, apperr.KindQuotaExceeded, apperr.KindOf(err))

	require.NoError(t, g.Release(ctx, "s1", d))
	_, err = g.Reserve(ctx, "s1")
	assert.NoError(t, err)
}

func TestReserveConcurrent(t *testing.T) {
	const limit, callers = 5, 40
	store := newMemStore(model.QuotaState{ShopID: "s1", Limit: limit, ResetDate: ptr(date(2030, time.January, 1))})
	g := NewGovernor(store, logger.Nop(), fixedNow(date(2025, time.March, 10)))

	var granted, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Reserve(context.Background(), "s1")
			if err == nil {
				atomic.AddInt32(&granted, 1)
			} else if apperr.KindOf(err) == apperr.KindQuotaExceeded {
				atomic.AddInt32(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, granted)
	assert.EqualValues(t, callers-limit, rejected)
	assert.Equal(t, limit, store.shops["s1"].Count)
}

func TestSweep(t *testing.T) {
	now := date(2025, time.February, 1)
	store := newMemStore(
		model.QuotaState{ShopID: "due", Limit: 5, Count: 5, ResetDate: ptr(date(2025, time.January, 31))},
		model.QuotaState{ShopID: "never", Limit: 5, Count: 1},
		model.QuotaState{ShopID: "active", Limit: 5, Count: 3, ResetDate: ptr(date(2025, time.February, 20))},
		model.QuotaState{ShopID: "broken", Limit: 5, Count: 2, ResetDate: ptr(date(2025, time.January, 1))},
	)
	store.failCAS["broken"] = errors.New("deadlock detected")
	g := NewGovernor(store, logger.Nop(), fixedNow(now))

	res, err := g.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 2, res.Reset)
	assert.Equal(t, []string{"broken"}, res.Failed)

	assert.Equal(t, date(2025, time.February, 28), *store.shops["due"].ResetDate)
	assert.Equal(t, 0, store.shops["due"].Count)
	assert.Equal(t, 3, store.shops["active"].Count)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		delete(store.failCAS, "broken")
		store.shops["broken"] = model.QuotaState{ShopID: "broken", Limit: 5, ResetDate: ptr(date(2025, time.March, 1))}
		before := map[string]model.QuotaState{}
		for k, v := range store.shops {
			before[k] = v
		}
		res, err := g.Sweep(context.Background(), 100)
		require.NoError(t, err)
		assert.Zero(t, res.Reset)
		assert.Equal(t, before, store.shops)
	})

	t.Run("list failure", func(t *testing.T) {
		store.failList = errors.New("timeout")
		_, err := g.Sweep(context.Background(), 100)
		assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	})
}

func TestSweepPages(t *testing.T) {
	now := date(2025, time.February, 1)
	var states []model.QuotaState
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		states = append(states, model.QuotaState{ShopID: id, Limit: 5, Count: 5, ResetDate: ptr(date(2025, time.January, 15))})
	}
	store := newMemStore(states...)
	store.failCAS["c"] = errors.New("deadlock detected")
	g := NewGovernor(store, logger.Nop(), fixedNow(now))

	res, err := g.Sweep(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, 4, res.Reset)
	assert.Equal(t, []string{"c"}, res.Failed)
	for _, id := range []string{"a", "b", "d", "e"} {
		assert.Zero(t, store.shops[id].Count, id)
		assert.False(t, Due(store.shops[id], now), id)
	}
}

func TestReleaseAcrossRollover(t *testing.T) {
	now := date(2025, time.March, 31)
	clock := func() time.Time { return now }
	store := newMemStore(model.QuotaState{ShopID: "s1", Limit: 3, ResetDate: ptr(date(2025, time.April, 1))})
	g := NewGovernor(store, logger.Nop(), clock)
	ctx := context.Background()

	old, err := g.Reserve(ctx, "s1")
	require.NoError(t, err)

	now = date(2025, time.April, 2)
	fresh, err := g.Reserve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.Count)

	require.NoError(t, g.Release(ctx, "s1", old))
	assert.Equal(t, 1, store.shops["s1"].Count, "a unit from the previous period must not be returned to the new one")

	require.NoError(t, g.Release(ctx, "s1", fresh))
	assert.Zero(t, store.shops["s1"].Count)
}

func TestLazyAndSweepAgree(t *testing.T) {
	now := date(2025, time.January, 31).Add(time.Hour)
	start := model.QuotaState{ShopID: "s", Limit: 3, Count: 3, ResetDate: ptr(date(2025, time.January, 31))}

	lazyStore := newMemStore(start)
	_, err := NewGovernor(lazyStore, logger.Nop(), fixedNow(now)).CheckAndMaybeReset(context.Background(), "s")
	require.NoError(t, err)

	sweepStore := newMemStore(start)
	_, err = NewGovernor(sweepStore, logger.Nop(), fixedNow(now)).Sweep(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, lazyStore.shops["s"], sweepStore.shops["s"])
}
