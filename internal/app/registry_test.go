package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetrix/signaling/internal/domain"
)

func TestDeregisterIsIdempotent(t *testing.T) {
	table, reg := newTable(t)
	conn, sig, _ := join(t, table, reg, "s1", "alice", "Alice", "X")

	// Close and error paths may both reach Deregister.
	reg.Deregister(conn)
	reg.Deregister(conn)

	_, ok := reg.Lookup("alice")
	assert.False(t, ok)
	_, ok = reg.BySession("s1")
	assert.False(t, ok)
	_ = sig
}

func TestMarkAliveResetsStateMachine(t *testing.T) {
	_, reg := newTable(t)
	sig := &fakeSignal{}
	conn := reg.Register("s1", domain.DeviceDesktop, sig)

	conn.mu.Lock()
	conn.state = StateAwaitingPong
	conn.missed = 1
	conn.mu.Unlock()

	before := conn.LastSeen()
	time.Sleep(time.Millisecond)
	reg.MarkAlive(conn)

	assert.Equal(t, StateAlive, conn.State())
	assert.True(t, conn.LastSeen().After(before))
}

func TestSameSessionReconnectReplacesEntry(t *testing.T) {
	_, reg := newTable(t)
	oldSig := &fakeSignal{}
	oldConn := reg.Register("s1", domain.DeviceDesktop, oldSig)

	newSig := &fakeSignal{}
	newConn := reg.Register("s1", domain.DeviceDesktop, newSig)

	assert.True(t, oldSig.isClosed(), "stale transport must be closed")

	got, ok := reg.BySession("s1")
	require.True(t, ok)
	assert.Same(t, newConn, got)

	// The stale connection's late disconnect must not evict the new one.
	reg.Deregister(oldConn)
	got, ok = reg.BySession("s1")
	require.True(t, ok)
	assert.Same(t, newConn, got)
}

func TestJoinLimiter(t *testing.T) {
	rl := NewJoinLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("s1"))
	}
	assert.False(t, rl.Allow("s1"))
	assert.True(t, rl.Allow("s2"), "limits are per session")

	rl.Forget("s1")
	assert.True(t, rl.Allow("s1"))
}
