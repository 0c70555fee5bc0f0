package persist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpggio/skitimer/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWriter_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWriter(store, time.Hour, nil)

	require.NoError(t, w.Put(ctx, "k", []byte("1")))
	require.NoError(t, w.Put(ctx, "k", []byte("2")))
	require.NoError(t, w.Put(ctx, "k", []byte("3")))

	got, err := w.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "3", string(got))

	_, err = store.Get(ctx, "k")
	require.Error(t, err, "nothing reaches storage before the flush")

	require.NoError(t, w.Flush(ctx))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "3", string(got))
	require.Equal(t, 1, store.batches)
	require.Zero(t, w.Pending())
}

func TestWriter_DebouncedFlush(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWriter(store, 20*time.Millisecond, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Put(ctx, KeyEntries, []byte{byte('a' + i)}))
	}

	require.Eventually(t, func() bool {
		v, err := store.Get(ctx, KeyEntries)
		return err == nil && string(v) == "e"
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Equal(t, 1, store.batches)
}

func TestWriter_CloseFlushesAndWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWriter(store, time.Hour, nil)

	require.NoError(t, w.Put(ctx, "a", []byte("1")))
	require.NoError(t, w.Close(ctx))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, "1", string(got))

	require.NoError(t, w.Put(ctx, "b", []byte("2")))
	require.Zero(t, w.Pending())
	require.Equal(t, 1, store.puts)
}

func TestWriter_ZeroDelayWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	w := NewWriter(store, 0, nil)

	require.NoError(t, w.Put(ctx, "a", []byte("1")))
	require.Equal(t, 1, store.puts)
	require.Zero(t, w.Pending())
}

func TestWriter_FailedFlushKeepsNewerValue(t *testing.T) {
	ctx := context.Background()
	kv := new(mocks.KVRepository)
	w := NewWriter(kv, time.Hour, nil)

	kv.On("PutMany", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		// A newer value arrives while the failing batch is in flight.
		w.mu.Lock()
		w.pending["k"] = []byte("new")
		w.mu.Unlock()
	}).Return(errors.New("locked")).Once()

	require.NoError(t, w.Put(ctx, "k", []byte("old")))
	require.NoError(t, w.Put(ctx, "other", []byte("x")))
	require.Error(t, w.Flush(ctx))

	got, err := w.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "new", string(got))
	got, err = w.Get(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
	require.Equal(t, 2, w.Pending())

	kv.On("PutMany", mock.Anything, map[string][]byte{"k": []byte("new"), "other": []byte("x")}).Return(nil).Once()
	require.NoError(t, w.Flush(ctx))
	require.Zero(t, w.Pending())
	kv.AssertExpectations(t)
}

func TestWriter_GetFallsThroughToStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.data["k"] = []byte("stored")
	w := NewWriter(store, time.Hour, nil)

	got, err := w.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "stored", string(got))
}

func TestWriter_GetServesInFlightBatch(t *testing.T) {
	tests := []struct {
		name        string
		flushErr    error
		wantPending int
	}{
		{name: "accepted", flushErr: nil, wantPending: 0},
		{name: "rejected", flushErr: errors.New("locked"), wantPending: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			kv := new(mocks.KVRepository)
			w := NewWriter(kv, time.Hour, nil)

			entered := make(chan struct{})
			release := make(chan struct{})
			kv.On("PutMany", mock.Anything, map[string][]byte{"k": []byte(`"new"`)}).Run(func(mock.Arguments) {
				close(entered)
				<-release
			}).Return(tt.flushErr).Once()

			require.NoError(t, Save(ctx, w, "k", "new"))

			done := make(chan error, 1)
			go func() { done <- w.Flush(ctx) }()
			<-entered

			got, outcome := Load(ctx, w, "k", "")
			require.Equal(t, Loaded, outcome)
			require.Equal(t, "new", got)

			close(release)
			err := <-done
			if tt.flushErr != nil {
				require.ErrorIs(t, err, tt.flushErr)
				got, _ = Load(ctx, w, "k", "")
				require.Equal(t, "new", got)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantPending, w.Pending())
			kv.AssertExpectations(t)
		})
	}
}
