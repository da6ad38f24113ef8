package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetrix/signaling/internal/domain"
)

func TestSupervisorTerminatesSilentConnection(t *testing.T) {
	table, reg := newTable(t)
	sup := NewSupervisor(reg, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	conn, sig, _ := join(t, table, reg, "s1", "alice", "Alice", "X")
	join(t, table, reg, "s2", "bob", "Bob", "X")

	go sup.Watch(conn)

	// Never answer pings: two missed beats must terminate the connection
	// and cascade cleanup into registry and room.
	require.Eventually(t, func() bool {
		_, stillRouted := reg.Lookup("alice")
		return !stillRouted
	}, time.Second, 5*time.Millisecond)

	assert.True(t, sig.isClosed())
	assert.Equal(t, StateTerminated, conn.State())

	room, ok := table.Get("X")
	require.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, domain.UserID("bob"), room.HostID())
}

func TestSupervisorKeepsRespondingConnectionAlive(t *testing.T) {
	table, reg := newTable(t)
	sup := NewSupervisor(reg, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	conn, sig, _ := join(t, table, reg, "s1", "alice", "Alice", "X")
	go sup.Watch(conn)

	// Simulate prompt pongs for a while.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		reg.MarkAlive(conn)
		time.Sleep(2 * time.Millisecond)
	}

	_, stillRouted := reg.Lookup("alice")
	assert.True(t, stillRouted)
	assert.False(t, sig.isClosed())

	sig.mu.Lock()
	pings := sig.pings
	sig.mu.Unlock()
	assert.Greater(t, pings, 0, "supervisor must have probed the connection")

	reg.Deregister(conn)
}

func TestSupervisorStopsWatchingOnDeregister(t *testing.T) {
	_, reg := newTable(t)
	sup := NewSupervisor(reg, 10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond)

	sig := &fakeSignal{}
	conn := reg.Register("s1", domain.DeviceMobile, sig)
	done := make(chan struct{})
	go func() {
		sup.Watch(conn)
		close(done)
	}()

	reg.Deregister(conn)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher goroutine did not exit after deregistration")
	}
}
