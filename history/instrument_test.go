package history

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/naya/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opCall struct {
	backend, op string
	failed      bool
}

type fakeOps struct{ calls []opCall }

func (f *fakeOps) RecordHistoryOp(backend, operation string, err error, _ time.Duration) {
	f.calls = append(f.calls, opCall{backend, operation, err != nil})
}

func TestInstrument(t *testing.T) {
	ops := &fakeOps{}
	s := Instrument(NewMemoryStore(nil), ops)
	ctx := context.Background()

	_, err := s.Save(ctx, Record{Role: types.RoleUser, Content: "halo"})
	require.NoError(t, err)
	_, err = s.Save(ctx, Record{Role: "bot", Content: "halo"})
	require.Error(t, err)
	_, err = s.History(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Ping(ctx))

	assert.Equal(t, []opCall{
		{"memory", "save", false},
		{"memory", "save", true},
		{"memory", "history", false},
		{"memory", "clear", false},
	}, ops.calls)
	assert.Equal(t, "memory", BackendName(s))
}

func TestInstrument_NilPassthrough(t *testing.T) {
	store := NewMemoryStore(nil)
	assert.Same(t, store, Instrument(store, nil))
	assert.Nil(t, Instrument(nil, &fakeOps{}))
}
