// ABOUTME: Tests for the session store manager lifecycle and partition operations
// ABOUTME: Covers idempotent init, lazy open failures, teardown and lastAccessed stamping

package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/engine/memory"
	"github.com/2389/pnm-localstore/internal/partition"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *memory.Engine, *testClock) {
	t.Helper()
	e := memory.New()
	clock := newTestClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	m := New(e, opts...)
	t.Cleanup(m.Wait)
	return m, e, clock
}

func TestManager_OperationsBeforeInit(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, m.State())

	_, err := m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.GetAll(ctx, partition.UserSettings)
	assert.ErrorIs(t, err, ErrNotInitialized)

	err = m.Put(ctx, partition.UserSettings, "lang", "en")
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.LastAccessed(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_InitRejectsInvalidIdentity(t *testing.T) {
	m, _, _ := newTestManager(t)

	err := m.Init(context.Background(), "", "userA")
	assert.ErrorIs(t, err, ErrInvalidIdentity)
	assert.Equal(t, StateUninitialized, m.State())
}

func TestManager_InitIsIdempotent(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Init(ctx, "otherRoom", "userB"))

	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))

	assert.Equal(t, 1, e.Opens("pnm-room123-userA"))
	assert.Equal(t, 0, e.Opens("pnm-otherRoom-userB"))
	assert.Equal(t, "pnm-room123-userA", m.Name())
	assert.Equal(t, StateOpen, m.State())
}

func TestManager_PutGetEveryPartition(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	type note struct {
		Text string `json:"text"`
		Seq  int    `json:"seq"`
	}

	for _, p := range partition.All() {
		want := note{Text: "hello " + string(p), Seq: 7}
		require.NoError(t, m.Put(ctx, p, "k", want), "partition %s", p)

		got, err := GetAs[note](ctx, m, p, "k")
		require.NoError(t, err, "partition %s", p)
		assert.Equal(t, want, got)
	}
}

func TestManager_MissingKeyDistinctFromFalsyValues(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	falsy := map[string]any{
		"null":  nil,
		"zero":  0,
		"false": false,
		"empty": "",
	}
	for key, v := range falsy {
		require.NoError(t, m.Put(ctx, partition.UserSettings, key, v))
	}

	for key, v := range falsy {
		raw, err := m.Get(ctx, partition.UserSettings, key)
		require.NoError(t, err, "key %s", key)
		want, _ := json.Marshal(v)
		assert.JSONEq(t, string(want), string(raw), "key %s", key)
	}

	_, err := m.Get(ctx, partition.UserSettings, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(ctx, "polls", "null")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_GetAll(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Put(ctx, partition.ChatMessages, fmt.Sprintf("m%d", i), i))
	}

	all, err := m.GetAll(ctx, partition.ChatMessages)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, raw := range all {
		got[string(raw)] = true
	}
	assert.Equal(t, map[string]bool{"0": true, "1": true, "2": true}, got)

	empty, err := m.GetAll(ctx, partition.ImageCache)
	require.NoError(t, err)
	assert.Empty(t, empty)

	unknown, err := m.GetAll(ctx, "polls")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestManager_OpenStampsLastAccessed(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	ts, err := m.LastAccessed(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(baseTime), "got %v", ts)
}

func TestManager_PutAdvancesLastAccessed(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	before, err := m.LastAccessed(ctx)
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	writeTime := clock.Now()
	require.NoError(t, m.Put(ctx, partition.Whiteboard, "page", "data"))

	after, err := m.LastAccessed(ctx)
	require.NoError(t, err)
	assert.False(t, after.Before(before))
	assert.False(t, after.Before(writeTime))

	// Reads do not count as activity.
	clock.Advance(time.Hour)
	_, err = m.Get(ctx, partition.Whiteboard, "page")
	require.NoError(t, err)
	again, err := m.LastAccessed(ctx)
	require.NoError(t, err)
	assert.True(t, again.Equal(after))
}

func TestManager_PutUnknownPartition(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	err := m.Put(ctx, "polls", "p1", 1)

	var writeErr *StorageWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, partition.Name("polls"), writeErr.Partition)
	assert.ErrorIs(t, err, engine.ErrUnknownPartition)
}

func TestManager_PutEngineRejection(t *testing.T) {
	m, e, clock := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))

	before, err := m.LastAccessed(ctx)
	require.NoError(t, err)

	quota := errors.New("quota exceeded")
	e.FailWrites(quota)
	clock.Advance(time.Minute)

	err = m.Put(ctx, partition.UserSettings, "lang", "de")
	var writeErr *StorageWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, quota)

	e.FailWrites(nil)
	got, err := GetAs[string](ctx, m, partition.UserSettings, "lang")
	require.NoError(t, err)
	assert.Equal(t, "en", got)

	after, err := m.LastAccessed(ctx)
	require.NoError(t, err)
	assert.True(t, after.Equal(before), "failed writes must not move lastAccessed")
}

func TestManager_PutUnencodableValue(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	err := m.Put(ctx, partition.UserSettings, "fn", func() {})
	require.Error(t, err)

	_, err = m.Get(ctx, partition.UserSettings, "fn")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_OpenFailureSurfacesLazily(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	boom := errors.New("storage unavailable")
	e.FailOpens(boom)

	require.NoError(t, m.Init(ctx, "room123", "userA"), "init never reports open failures")

	_, err := m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, m.State())

	// No retry: a repeated Init stays failed.
	e.FailOpens(nil)
	require.NoError(t, m.Init(ctx, "room123", "userA"))
	err = m.Put(ctx, partition.UserSettings, "lang", "en")
	assert.ErrorIs(t, err, boom)

	// Teardown discards the failed attempt and allows a fresh Init.
	require.NoError(t, m.Teardown(ctx))
	assert.Equal(t, StateClosed, m.State())
	require.NoError(t, m.Init(ctx, "room123", "userA"))
	assert.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))
}

func TestManager_OperationsWaitForOpen(t *testing.T) {
	g := newGatedEngine()
	m := New(g)
	t.Cleanup(m.Wait)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	assert.Equal(t, StateOpening, m.State())

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := m.Get(short, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		done <- m.Put(ctx, partition.UserSettings, "lang", "en")
	}()

	g.release()
	require.NoError(t, <-done)

	got, err := GetAs[string](ctx, m, partition.UserSettings, "lang")
	require.NoError(t, err)
	assert.Equal(t, "en", got)
}

func TestManager_TeardownWaitsForOpen(t *testing.T) {
	g := newGatedEngine()
	m := New(g)
	t.Cleanup(m.Wait)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))

	done := make(chan error, 1)
	go func() {
		done <- m.Teardown(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("teardown returned before open finished: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	g.release()
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, m.State())
	assert.False(t, g.Exists("pnm-room123-userA"))
}

func TestManager_TeardownScenario(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))

	got, err := GetAs[string](ctx, m, partition.UserSettings, "lang")
	require.NoError(t, err)
	assert.Equal(t, "en", got)

	require.NoError(t, m.Teardown(ctx))
	assert.False(t, e.Exists("pnm-room123-userA"))
	assert.Equal(t, "", m.Name())

	_, err = m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_TeardownThenFreshInit(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))
	require.NoError(t, m.Teardown(ctx))

	require.NoError(t, m.Init(ctx, "room456", "userB"))
	assert.Equal(t, "pnm-room456-userB", m.Name())

	_, err := m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, ErrNotFound, "new database starts empty")

	assert.True(t, e.Exists("pnm-room456-userB"))
	assert.False(t, e.Exists("pnm-room123-userA"))
}

func TestManager_TeardownWithoutInit(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Teardown(ctx))
	assert.Equal(t, StateUninitialized, m.State())

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Teardown(ctx))
	require.NoError(t, m.Teardown(ctx), "second teardown is a no-op")
}

func TestManager_CloseKeepsData(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Close(ctx), "close before init is a no-op")

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))
	require.NoError(t, m.Close(ctx))

	assert.Equal(t, StateClosed, m.State())
	assert.True(t, e.Exists("pnm-room123-userA"))

	_, err := m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	got, err := GetAs[string](ctx, m, partition.UserSettings, "lang")
	require.NoError(t, err)
	assert.Equal(t, "en", got)
}

func TestManager_WaitConcurrentWithInit(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				m.Wait()
			}
		}
	}()

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Init(ctx, "room123", "userA"))
		require.NoError(t, m.Teardown(ctx))
	}
	close(stop)
	wg.Wait()

	m.Wait()
	assert.Equal(t, StateClosed, m.State())
}

func TestManager_WaitCoversEveryInit(t *testing.T) {
	var mu sync.Mutex
	reports := 0
	m, _, _ := newTestManager(t, WithScanObserver(ScanObserverFunc(func(ScanReport) {
		mu.Lock()
		reports++
		mu.Unlock()
	})))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Init(ctx, "room123", "userA"))
		require.NoError(t, m.Close(ctx))
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, reports)
}

func TestManager_TeardownDeleteFailure(t *testing.T) {
	m, e, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Init(ctx, "room123", "userA"))
	require.NoError(t, m.Put(ctx, partition.UserSettings, "lang", "en"))

	e.FailDelete("pnm-room123-userA", errors.New("permission denied"))
	err := m.Teardown(ctx)
	require.Error(t, err)

	assert.Equal(t, StateClosed, m.State())
	_, err = m.Get(ctx, partition.UserSettings, "lang")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestManager_ConcurrentPuts(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Init(ctx, "room123", "userA"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Put(ctx, partition.UserNotifications, fmt.Sprintf("n%d", i), i))
			assert.NoError(t, m.Put(ctx, partition.UserSettings, "shared", i))
		}(i)
	}
	wg.Wait()

	all, err := m.GetAll(ctx, partition.UserNotifications)
	require.NoError(t, err)
	assert.Len(t, all, 20)

	shared, err := GetAs[int](ctx, m, partition.UserSettings, "shared")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, shared, 0)
	assert.Less(t, shared, 20)
}

func TestManager_InitContextCancellationDoesNotAbortOpen(t *testing.T) {
	m, _, _ := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Init(ctx, "room123", "userA"))
	cancel()

	err := m.Put(context.Background(), partition.UserSettings, "lang", "en")
	assert.NoError(t, err)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
