// ABOUTME: Shared fixtures for session store tests
// ABOUTME: Controllable clock and an engine wrapper that blocks opens until released

package sessionstore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/pnm-localstore/internal/engine"
	"github.com/2389/pnm-localstore/internal/engine/memory"
	"github.com/2389/pnm-localstore/internal/partition"
)

var baseTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// gatedEngine holds every Open until release is called.
type gatedEngine struct {
	*memory.Engine
	gate chan struct{}
	once sync.Once
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{Engine: memory.New(), gate: make(chan struct{})}
}

func (g *gatedEngine) Open(ctx context.Context, name string) (engine.Handle, error) {
	<-g.gate
	return g.Engine.Open(ctx, name)
}

func (g *gatedEngine) release() {
	g.once.Do(func() { close(g.gate) })
}

func millis(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.UnixMilli(), 10))
}

// seedDatabase creates a database holding one record and the given lastAccessed value.
func seedDatabase(t *testing.T, e engine.Engine, name string, lastAccessed []byte) {
	t.Helper()
	ctx := context.Background()

	h, err := e.Open(ctx, name)
	require.NoError(t, err)
	defer h.Close()

	records := []engine.Record{{Partition: partition.UserSettings, Key: "lang", Value: []byte(`"en"`)}}
	if lastAccessed != nil {
		records = append(records, engine.Record{Partition: partition.Metadata, Key: partition.LastAccessedKey, Value: lastAccessed})
	}
	require.NoError(t, h.Write(ctx, records...))
}

// reportCollector captures scan reports delivered to a ScanObserver.
type reportCollector struct {
	mu      sync.Mutex
	reports []ScanReport
}

func (c *reportCollector) ObserveScan(r ScanReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *reportCollector) all() []ScanReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ScanReport(nil), c.reports...)
}
