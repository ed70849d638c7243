package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/segurbot/core/protocol"
	"github.com/tailored-agentic-units/segurbot/memory"
	"github.com/tailored-agentic-units/segurbot/session"
)

func newKV() memory.KV {
	return memory.NewKV(memory.NewMapStore(), "")
}

func TestRestore_Empty(t *testing.T) {
	r := session.Restore(context.Background(), newKV(), "hola")

	require.NoError(t, r.Err)
	assert.True(t, r.NewID)
	assert.False(t, r.HadMessages)
	assert.NotEmpty(t, r.Session.ID())
	assert.Equal(t, 1, r.Session.Len())
	assert.True(t, r.Session.Greeting().IsInitial)
}

func TestRestore_ExistingID(t *testing.T) {
	ctx := context.Background()
	kv := newKV()
	require.NoError(t, kv.Set(ctx, session.KeySessionID, "persisted-id"))

	r := session.Restore(ctx, kv, "hola")

	assert.False(t, r.NewID)
	assert.Equal(t, "persisted-id", r.Session.ID())
}

func TestSaveRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := newKV()

	s := session.New("abc", session.Greeting("hola"))
	s.Append(protocol.NewUserMessage("u1", "Quiero cotizar"))
	s.Append(protocol.Message{ID: "b1", Content: "¡Claro!", IsBot: true, ShouldShowTyping: true})
	require.NoError(t, session.Save(ctx, kv, s))
	require.NoError(t, session.SaveID(ctx, kv, s))

	r := session.Restore(ctx, kv, "hola")
	require.NoError(t, r.Err)
	assert.True(t, r.HadMessages)
	assert.Equal(t, "abc", r.Session.ID())

	msgs := r.Session.Messages()
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].IsInitial)
	assert.Equal(t, s.Messages()[1:], msgs[1:])
}

func TestRestore_Idempotent(t *testing.T) {
	ctx := context.Background()
	kv := newKV()

	s := session.New("abc", session.Greeting("hola"))
	s.Append(protocol.NewUserMessage("u1", "one"))
	require.NoError(t, session.Save(ctx, kv, s))

	first := session.Restore(ctx, kv, "hola")
	require.NoError(t, session.Save(ctx, kv, first.Session))
	second := session.Restore(ctx, kv, "hola")

	assert.Equal(t, 2, first.Session.Len())
	assert.Equal(t, 2, second.Session.Len())

	initial := 0
	for _, m := range second.Session.Messages() {
		if m.IsInitial {
			initial++
		}
	}
	assert.Equal(t, 1, initial)
}

func TestSave_ExcludesGreeting(t *testing.T) {
	ctx := context.Background()
	kv := newKV()

	s := session.New("abc", session.Greeting("hola"))
	require.NoError(t, session.Save(ctx, kv, s))

	raw, ok, err := kv.Get(ctx, session.KeyMessages)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, raw)
}

func TestRestore_DropsPersistedInitial(t *testing.T) {
	ctx := context.Background()
	kv := newKV()
	require.NoError(t, kv.Set(ctx, session.KeyMessages,
		`[{"content":"old greeting","isBot":true,"isInitial":true},{"content":"hi","isBot":false}]`))

	r := session.Restore(ctx, kv, "hola")

	msgs := r.Session.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hola", msgs[0].Content)
	assert.Equal(t, "hi", msgs[1].Content)
	assert.NotEmpty(t, msgs[1].ID, "legacy messages get an id")
}

func TestRestore_CorruptMessages(t *testing.T) {
	ctx := context.Background()
	kv := newKV()
	require.NoError(t, kv.Set(ctx, session.KeySessionID, "abc"))
	require.NoError(t, kv.Set(ctx, session.KeyMessages, `{not json`))

	r := session.Restore(ctx, kv, "hola")

	assert.Error(t, r.Err)
	assert.False(t, r.HadMessages)
	assert.Equal(t, "abc", r.Session.ID())
	assert.Equal(t, 1, r.Session.Len())
}

type brokenKV struct{ err error }

func (b brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, b.err }
func (b brokenKV) Set(context.Context, string, string) error       { return b.err }
func (b brokenKV) Remove(context.Context, string) error            { return b.err }

func TestRestore_StorageFailure(t *testing.T) {
	boom := errors.New("storage unavailable")

	r := session.Restore(context.Background(), brokenKV{err: boom}, "hola")

	assert.ErrorIs(t, r.Err, boom)
	assert.True(t, r.NewID)
	assert.Equal(t, 1, r.Session.Len())
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	kv := newKV()
	require.NoError(t, kv.Set(ctx, session.KeyMessages, `[]`))

	require.NoError(t, session.Clear(ctx, kv))

	_, ok, err := kv.Get(ctx, session.KeyMessages)
	require.NoError(t, err)
	assert.False(t, ok)
}
