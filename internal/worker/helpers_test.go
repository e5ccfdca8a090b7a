package worker

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"sheetsync/internal/events"
	"sheetsync/internal/models"

	"github.com/rs/zerolog"
)

type storeCall struct {
	Method  string
	StoreID string
	Range   string
	Values  models.Matrix
}

// fakeStore records every call in order. Calls on blockRange wait until
// release is closed.
type fakeStore struct {
	mu       sync.Mutex
	calls    []storeCall
	data     map[string]models.Matrix
	errs     map[string]error
	panics   map[string]bool
	started  chan storeCall
	release  chan struct{}
	blockKey string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:    make(map[string]models.Matrix),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		started: make(chan storeCall, 64),
	}
}

func key(method, storeID, rangeA1 string) string {
	return method + " " + storeID + "|" + rangeA1
}

func (f *fakeStore) setData(storeID, rangeA1 string, m models.Matrix) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[storeID+"|"+rangeA1] = m
}

func (f *fakeStore) failOn(method, storeID, rangeA1 string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key(method, storeID, rangeA1)] = err
}

func (f *fakeStore) panicOn(method, storeID, rangeA1 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panics[key(method, storeID, rangeA1)] = true
}

func (f *fakeStore) blockOn(method, storeID, rangeA1 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockKey = key(method, storeID, rangeA1)
	f.release = make(chan struct{})
}

func (f *fakeStore) unblock() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.release != nil {
		close(f.release)
	}
}

func (f *fakeStore) record(ctx context.Context, method, storeID, rangeA1 string, values models.Matrix) error {
	call := storeCall{Method: method, StoreID: storeID, Range: rangeA1, Values: values.Clone()}
	k := key(method, storeID, rangeA1)

	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.errs[k]
	shouldPanic := f.panics[k]
	var wait chan struct{}
	if f.blockKey == k {
		wait = f.release
	}
	f.mu.Unlock()

	select {
	case f.started <- call:
	default:
	}
	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if shouldPanic {
		panic(fmt.Sprintf("store exploded on %s", k))
	}
	return err
}

func (f *fakeStore) ReadRange(ctx context.Context, storeID, rangeA1 string) (*models.ReadResult, error) {
	if err := f.record(ctx, "read", storeID, rangeA1, nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.ReadResult{Range: rangeA1, Values: f.data[storeID+"|"+rangeA1].Clone(), MajorDimension: "ROWS"}, nil
}

func (f *fakeStore) WriteRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error) {
	if err := f.record(ctx, "write", storeID, rangeA1, values); err != nil {
		return nil, err
	}
	rows, cols := values.Rows()
	return &models.WriteSummary{UpdatedRange: rangeA1, UpdatedRows: int64(rows), UpdatedColumns: int64(cols), UpdatedCells: int64(rows * cols)}, nil
}

func (f *fakeStore) AppendRange(ctx context.Context, storeID, rangeA1 string, values models.Matrix) (*models.WriteSummary, error) {
	if err := f.record(ctx, "append", storeID, rangeA1, values); err != nil {
		return nil, err
	}
	return &models.WriteSummary{UpdatedRange: rangeA1}, nil
}

func (f *fakeStore) Calls() []storeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storeCall(nil), f.calls...)
}

func (f *fakeStore) callsOf(method string) []storeCall {
	var out []storeCall
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// fakeClock only moves when Advance is called.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	c        chan time.Time
	interval time.Duration
	next     time.Time
	stopped  bool
	clock    *fakeClock
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1), interval: d, next: c.now.Add(d), clock: c}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(c.now) {
			select {
			case t.c <- c.now:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
}

func (c *fakeClock) Live() []*fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTicker
	for _, t := range c.tickers {
		if !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) Stopped() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	return t.stopped
}

// eventLog subscribes to every engine event type and keeps them in order.
type eventLog struct {
	mu     sync.Mutex
	events []*events.Event
}

func newEventLog(bus *events.EventBus) *eventLog {
	l := &eventLog{}
	for _, typ := range []string{
		events.EventOperationEnqueued,
		events.EventOperationCompleted,
		events.EventOperationFailed,
		events.EventOperationCancelled,
		events.EventOperationsCleared,
		events.EventDrainCompleted,
		events.EventReconcileCompleted,
		events.EventReconcileWriteFail,
	} {
		bus.Subscribe(typ, func(e *events.Event) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.events = append(l.events, e)
			return nil
		})
	}
	return l
}

func (l *eventLog) ofType(typ string) []*events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*events.Event
	for _, e := range l.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestEngine(store *fakeStore, opts ...Option) (*Engine, *eventLog) {
	bus := events.NewEventBus()
	log := newEventLog(bus)
	logger := zerolog.New(io.Discard)
	counter := 0
	var idMu sync.Mutex
	opts = append([]Option{WithIDGenerator(func() models.OperationID {
		idMu.Lock()
		defer idMu.Unlock()
		counter++
		return models.OperationID(fmt.Sprintf("op-%d", counter))
	})}, opts...)
	return NewEngine(store, bus, &logger, opts...), log
}
