package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// failingStore 所有操作都失败
type failingStore struct{ MemoryStore }

var errBackend = errors.New("backend down")

func (f *failingStore) Save(context.Context, Record) (Record, error)  { return Record{}, errBackend }
func (f *failingStore) History(context.Context, int) ([]Record, error) { return nil, errBackend }
func (f *failingStore) Clear(context.Context) error                    { return errBackend }

func TestRecorder_RoundTrip(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewRecorder(store, nil, WithLimit(2))
	ctx := context.Background()

	r.Save(ctx, types.RoleUser, "satu")
	r.Save(ctx, types.RoleAssistant, "dua")
	r.Save(ctx, types.RoleUser, "tiga")

	msgs := r.Load(ctx)
	require.Len(t, msgs, 2)
	assert.Equal(t, "dua", msgs[0].Content)
	assert.Equal(t, types.RoleAssistant, msgs[0].Role)
	assert.Equal(t, "tiga", msgs[1].Content)

	r.Clear(ctx)
	assert.Empty(t, r.Load(ctx))
}

func TestRecorder_SaveSurvivesCanceledContext(t *testing.T) {
	store := NewMemoryStore(nil)
	r := NewRecorder(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Save(ctx, types.RoleUser, "tetap tersimpan")

	got, err := store.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecorder_FailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := NewRecorder(&failingStore{}, zap.New(core), WithTimeout(time.Second))
	ctx := context.Background()

	r.Save(ctx, types.RoleUser, "x")
	assert.Nil(t, r.Load(ctx))
	r.Clear(ctx)

	assert.Equal(t, 1, logs.FilterMessage("failed to save chat message").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to load chat history").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to clear chat history").Len())
}

func TestRecorder_NilStore(t *testing.T) {
	r := NewRecorder(nil, nil)
	assert.False(t, r.Enabled())

	r.Save(context.Background(), types.RoleUser, "x")
	assert.Nil(t, r.Load(context.Background()))
	r.Clear(context.Background())

	var nilRecorder *Recorder
	assert.False(t, nilRecorder.Enabled())
}
