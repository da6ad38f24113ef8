package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetrix/signaling/internal/protocol"
)

func TestPollLifecycle(t *testing.T) {
	table, reg := newTable(t)

	connA, _, _ := join(t, table, reg, "s1", "alice", "Alice", "X")
	connB, sigB, _ := join(t, table, reg, "s2", "bob", "Bob", "X")

	// Host creates.
	snap, err := table.CreatePoll(connA, "lunch?", []string{"pizza", "sushi"})
	require.NoError(t, err)
	assert.Len(t, snap.Votes, 2)
	require.Len(t, sigB.typed(protocol.TypePollCreated), 1)

	// Member votes; re-voting moves the vote.
	snap, err = table.Vote(connB, snap.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, snap.Votes)
	snap, err = table.Vote(connB, snap.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, snap.Votes)

	// Host ends; final tally fans out.
	snap, err = table.EndPoll(connA, snap.ID)
	require.NoError(t, err)
	assert.True(t, snap.Ended)
	require.Len(t, sigB.typed(protocol.TypePollEnded), 1)

	_, err = table.Vote(connB, snap.ID, 0)
	require.ErrorIs(t, err, ErrPollEnded)
}

func TestPollCreateAndEndRequirePrivilege(t *testing.T) {
	table, reg := newTable(t)

	connA, _, _ := join(t, table, reg, "s1", "alice", "Alice", "X")
	connB, _, _ := join(t, table, reg, "s2", "bob", "Bob", "X")

	_, err := table.CreatePoll(connB, "q?", []string{"a", "b"})
	var aerr *protocol.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	snap, err := table.CreatePoll(connA, "q?", []string{"a", "b"})
	require.NoError(t, err)

	_, err = table.EndPoll(connB, snap.ID)
	require.ErrorAs(t, err, &aerr)
}

func TestPollValidation(t *testing.T) {
	table, reg := newTable(t)
	connA, _, _ := join(t, table, reg, "s1", "alice", "Alice", "X")

	_, err := table.CreatePoll(connA, "", []string{"a", "b"})
	require.ErrorIs(t, err, ErrEmptyPoll)
	_, err = table.CreatePoll(connA, "q?", []string{"only"})
	require.ErrorIs(t, err, ErrEmptyPoll)

	snap, err := table.CreatePoll(connA, "q?", []string{"a", "b"})
	require.NoError(t, err)
	_, err = table.Vote(connA, snap.ID, 7)
	require.ErrorIs(t, err, ErrBadPollOption)
	_, err = table.Vote(connA, "nope", 0)
	require.ErrorIs(t, err, ErrPollNotFound)
}
