package points

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buddy/internal/errors"
	"github.com/p-blackswan/buddy/internal/kv"
)

func TestLedger_AddAndTotal(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(kv.NewMemoryStore(), zerolog.Nop())

	assert.Equal(t, Points{}, l.Get(ctx))
	assert.Equal(t, 0, l.Total(ctx))

	_, err := l.Add(ctx, Gratitude, 10)
	require.NoError(t, err)
	_, err = l.Add(ctx, Creativity, 20)
	require.NoError(t, err)
	p, err := l.Add(ctx, Gratitude, 0)
	require.NoError(t, err)

	assert.Equal(t, Points{Gratitude: 10, Creativity: 20}, p)
	assert.Equal(t, 30, l.Total(ctx))
	assert.Equal(t, 20, p.Of(Creativity))
}

func TestLedger_Rejects(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(kv.NewMemoryStore(), zerolog.Nop())

	_, err := l.Add(ctx, Physical, -1)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = l.Add(ctx, "calm", 10)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	assert.Equal(t, 0, l.Total(ctx))
}

func TestLedger_PersistsInStore(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemoryStore()
	_, err := NewLedger(mem, zerolog.Nop()).Add(ctx, Kindness, 5)
	require.NoError(t, err)

	raw, ok, err := mem.Get(ctx, kv.KeyPoints)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"gratitude":0,"physical":0,"kindness":5,"creativity":0}`, string(raw))

	assert.Equal(t, 5, NewLedger(mem, zerolog.Nop()).Total(ctx))
}
