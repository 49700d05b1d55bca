package socket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain pops every queued frame from a participant's send buffer.
func drain(p *Participant) []*Envelope {
	var envs []*Envelope
	for {
		select {
		case frame := <-p.send:
			env, err := ParseEnvelope(frame)
			if err != nil {
				panic(err)
			}
			envs = append(envs, env)
		default:
			return envs
		}
	}
}

func newRelayFixture() (*Registry, *StateCache, *Relay) {
	registry := NewRegistry()
	state := NewStateCache()
	relay := NewRelay(registry, state, nil)
	return registry, state, relay
}

func TestRelayFansOutToOthersNeverSender(t *testing.T) {
	registry, state, relay := newRelayFixture()

	a := NewParticipant()
	a.UserID = "A"
	b := NewParticipant()
	b.UserID = "B"
	c := NewParticipant()
	c.UserID = "C"
	registry.Join("doc1", a)
	registry.Join("doc1", b)
	registry.Join("doc1", c)

	relay.HandleContentChange(a, "hello")

	assert.Empty(t, drain(a), "sender must not receive its own edit")

	for _, recipient := range []*Participant{b, c} {
		envs := drain(recipient)
		require.Len(t, envs, 1, "each other member receives the edit exactly once")
		assert.Equal(t, TypeContentUpdated, envs[0].Type)

		var msg ContentUpdatedMessage
		require.NoError(t, json.Unmarshal(envs[0].Data, &msg))
		assert.Equal(t, "doc1", msg.DocumentID)
		assert.Equal(t, "hello", msg.Content)
		assert.Equal(t, "A", msg.UserID)
		assert.NotZero(t, msg.Timestamp)
	}

	snap, ok := state.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, "hello", snap.Content)
}

func TestRelayLastWriterWins(t *testing.T) {
	registry, state, relay := newRelayFixture()

	a := NewParticipant()
	a.UserID = "A"
	b := NewParticipant()
	b.UserID = "B"
	registry.Join("doc1", a)
	registry.Join("doc1", b)

	relay.HandleContentChange(a, "hello")
	relay.HandleContentChange(b, "hello world")

	// Processing order decides, not timestamps: the second edit replaces
	// the first outright.
	snap, _ := state.Get("doc1")
	assert.Equal(t, "hello world", snap.Content)

	envs := drain(a)
	require.Len(t, envs, 1)
	var msg ContentUpdatedMessage
	require.NoError(t, json.Unmarshal(envs[0].Data, &msg))
	assert.Equal(t, "hello world", msg.Content)
	assert.Equal(t, "B", msg.UserID)
}

func TestRelayDropsEditsFromNonMembers(t *testing.T) {
	registry, state, relay := newRelayFixture()

	member := NewParticipant()
	registry.Join("doc1", member)

	stray := NewParticipant()
	relay.HandleContentChange(stray, "stale")
	relay.HandleTitleChange(stray, "stale title")

	assert.Empty(t, drain(member), "stray edits must not reach members")
	assert.Empty(t, drain(stray), "stray edits get no error reply either")
	_, ok := state.Get("doc1")
	assert.False(t, ok, "stray edits must not touch the snapshot")
}

func TestRelayTitleChangeUpdatesSnapshot(t *testing.T) {
	registry, state, relay := newRelayFixture()

	a := NewParticipant()
	a.UserID = "A"
	b := NewParticipant()
	registry.Join("doc1", a)
	registry.Join("doc1", b)

	relay.HandleTitleChange(a, "Meeting Notes")

	snap, ok := state.Get("doc1")
	require.True(t, ok)
	assert.Equal(t, "Meeting Notes", snap.Title)
	assert.Empty(t, snap.Content)

	envs := drain(b)
	require.Len(t, envs, 1)
	assert.Equal(t, TypeTitleUpdated, envs[0].Type)
}

func TestRelayCursorChangeIsTransient(t *testing.T) {
	registry, state, relay := newRelayFixture()

	a := NewParticipant()
	a.UserID = "A"
	b := NewParticipant()
	registry.Join("doc1", a)
	registry.Join("doc1", b)

	relay.HandleCursorChange(a, CursorPositionMessage{Position: 5, SelectionStart: 5, SelectionEnd: 9})

	envs := drain(b)
	require.Len(t, envs, 1)
	assert.Equal(t, TypeCursorUpdated, envs[0].Type)

	var msg CursorUpdatedMessage
	require.NoError(t, json.Unmarshal(envs[0].Data, &msg))
	assert.Equal(t, 5, msg.Position)
	assert.Equal(t, 9, msg.SelectionEnd)
	assert.Equal(t, "A", msg.UserID)

	// Cursor state is never part of the snapshot.
	_, ok := state.Get("doc1")
	assert.False(t, ok)
}

func TestRelayEvictsParticipantWithFullBuffer(t *testing.T) {
	registry, state, relay := newRelayFixture()

	evicted := make([]*Participant, 0, 1)
	relay.evict = func(p *Participant) { evicted = append(evicted, p) }

	a := NewParticipant()
	registry.Join("doc1", a)

	slow := NewParticipant()
	registry.Join("doc1", slow)
	for i := 0; i < cap(slow.send); i++ {
		slow.send <- []byte("{}")
	}

	relay.HandleContentChange(a, "x")

	require.Len(t, evicted, 1)
	assert.Equal(t, slow, evicted[0])

	snap, _ := state.Get("doc1")
	assert.Equal(t, "x", snap.Content)
}
