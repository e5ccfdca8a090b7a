package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"sheetsync/internal/events"
	"sheetsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcile_IdenticalIsNoop(t *testing.T) {
	store := newFakeStore()
	data := models.Matrix{{"a", "b"}, {"1", "2"}}
	store.setData("src", "Sheet1!A1:B2", data)
	store.setData("dst", "Sheet1!A1:B2", data)
	engine, log := newTestEngine(store)

	result, err := engine.Reconcile(context.Background(), "src", "Sheet1!A1:B2", "dst", "Sheet1!A1:B2")
	require.NoError(t, err)

	assert.Equal(t, data, result.SourceData)
	assert.Equal(t, data, result.TargetData)
	assert.False(t, result.Changed)
	assert.Empty(t, store.callsOf("write"))
	assert.Len(t, store.callsOf("read"), 2)
	assert.Len(t, log.ofType(events.EventReconcileCompleted), 1)
}

func TestReconcile_PropagatesBothWays(t *testing.T) {
	store := newFakeStore()
	store.setData("src", "S!A1", models.Matrix{{"x"}})
	store.setData("dst", "T!A1", models.Matrix{{"y"}})
	engine, _ := newTestEngine(store)

	result, err := engine.Reconcile(context.Background(), "src", "S!A1", "dst", "T!A1")
	require.NoError(t, err)

	assert.Equal(t, models.Matrix{{"x"}}, result.SourceData)
	assert.Equal(t, models.Matrix{{"y"}}, result.TargetData)
	assert.True(t, result.Changed)

	writes := store.callsOf("write")
	require.Len(t, writes, 2)
	byTarget := map[string]models.Matrix{}
	for _, w := range writes {
		byTarget[w.StoreID+"|"+w.Range] = w.Values
	}
	assert.Equal(t, models.Matrix{{"x"}}, byTarget["dst|T!A1"])
	assert.Equal(t, models.Matrix{{"y"}}, byTarget["src|S!A1"])
}

func TestReconcile_ShapeDifferencesPropagate(t *testing.T) {
	store := newFakeStore()
	store.setData("a", "R", models.Matrix{{"1", "2"}})
	store.setData("b", "R", models.Matrix{{"1", "2"}, {"3"}})
	engine, _ := newTestEngine(store)

	result, err := engine.Reconcile(context.Background(), "a", "R", "b", "R")
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Len(t, store.callsOf("write"), 2)
}

func TestReconcile_ReadFailureShortCircuits(t *testing.T) {
	for _, side := range []string{"source", "target"} {
		t.Run(side, func(t *testing.T) {
			store := newFakeStore()
			store.setData("src", "A", models.Matrix{{"x"}})
			store.setData("dst", "B", models.Matrix{{"y"}})
			readErr := errors.New("invalid range")
			if side == "source" {
				store.failOn("read", "src", "A", readErr)
			} else {
				store.failOn("read", "dst", "B", readErr)
			}
			engine, log := newTestEngine(store)

			result, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, models.CodeReconciliationReadError, models.CodeOf(err))
			assert.ErrorIs(t, err, readErr)
			assert.Empty(t, store.callsOf("write"))

			completed := log.ofType(events.EventReconcileCompleted)
			require.Len(t, completed, 1)
			var payload events.ReconcilePayload
			require.NoError(t, completed[0].Decode(&payload))
			assert.NotEmpty(t, payload.Error)
		})
	}
}

func TestReconcile_ReadErrorBlamesFailedSide(t *testing.T) {
	store := newFakeStore()
	readErr := errors.New("invalid range")
	store.failOn("read", "src", "A", readErr)
	store.blockOn("read", "dst", "B")
	defer store.unblock()
	engine, _ := newTestEngine(store)

	_, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
	require.Error(t, err)
	assert.Equal(t, models.CodeReconciliationReadError, models.CodeOf(err))
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "source read: invalid range")
	assert.NotContains(t, err.Error(), "target read")
}

func TestReconcile_BothReadsFail(t *testing.T) {
	store := newFakeStore()
	srcErr := errors.New("sheet missing")
	tgtErr := errors.New("range out of bounds")
	store.failOn("read", "src", "A", srcErr)
	store.failOn("read", "dst", "B", tgtErr)
	engine, _ := newTestEngine(store)

	_, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
	require.Error(t, err)
	assert.ErrorIs(t, err, srcErr)
	assert.ErrorIs(t, err, tgtErr)
	assert.Empty(t, store.callsOf("write"))
}

func TestReconcile_ReadPanicIsReadError(t *testing.T) {
	store := newFakeStore()
	store.panicOn("read", "src", "A")
	engine, _ := newTestEngine(store)

	_, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
	assert.Equal(t, models.CodeReconciliationReadError, models.CodeOf(err))
	assert.Empty(t, store.callsOf("write"))
}

func TestReconcile_WriteFailureKeepsResult(t *testing.T) {
	store := newFakeStore()
	store.setData("src", "A", models.Matrix{{"x"}})
	store.setData("dst", "B", models.Matrix{{"y"}})
	store.failOn("write", "dst", "B", errors.New("protected range"))
	engine, log := newTestEngine(store)

	result, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
	require.NoError(t, err)
	assert.Equal(t, models.Matrix{{"x"}}, result.SourceData)
	assert.Equal(t, models.Matrix{{"y"}}, result.TargetData)

	// Both legs are attempted even though one fails.
	assert.Len(t, store.callsOf("write"), 2)

	failures := log.ofType(events.EventReconcileWriteFail)
	require.Len(t, failures, 1)
	var payload events.ReconcilePayload
	require.NoError(t, failures[0].Decode(&payload))
	assert.Equal(t, "dst", payload.TargetStoreID)
	assert.Contains(t, payload.Error, "protected range")
}

func TestReconcile_RunsAlongsideDrain(t *testing.T) {
	store := newFakeStore()
	store.blockOn("write", "queue", "Q")
	store.setData("src", "A", models.Matrix{{"same"}})
	store.setData("dst", "B", models.Matrix{{"same"}})
	engine, _ := newTestEngine(store)

	engine.EnqueueWrite("queue", "Q", models.Matrix{{"q"}})
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Drain(context.Background())
	}()
	<-store.started
	require.True(t, engine.IsActive())

	finished := make(chan error, 1)
	go func() {
		_, err := engine.Reconcile(context.Background(), "src", "A", "dst", "B")
		finished <- err
	}()
	select {
	case err := <-finished:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile blocked behind the drain")
	}

	store.unblock()
	<-done
}
