package app

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

// maxMissedPongs is how many consecutive unanswered heartbeats terminate
// a connection.
const maxMissedPongs = 2

// Supervisor drives per-connection heartbeats and evicts stale
// connections. Two liveness signals feed the same state machine:
// transport ping/pong frames sent from here, and the redundant
// application-level ping message some proxies require. Either resets the
// timeout via Registry.MarkAlive.
type Supervisor struct {
	reg *Registry

	DesktopPeriod time.Duration
	MobilePeriod  time.Duration
	LowEndPeriod  time.Duration
}

func NewSupervisor(reg *Registry, desktop, mobile, lowEnd time.Duration) *Supervisor {
	return &Supervisor{
		reg:           reg,
		DesktopPeriod: desktop,
		MobilePeriod:  mobile,
		LowEndPeriod:  lowEnd,
	}
}

// period is adaptive by declared device class: OS-level network
// suspension is more aggressive on power-constrained clients. Tuning
// only, never correctness.
func (s *Supervisor) period(d domain.DeviceClass) time.Duration {
	switch d {
	case domain.DeviceMobile:
		return s.MobilePeriod
	case domain.DeviceLowEnd:
		return s.LowEndPeriod
	default:
		return s.DesktopPeriod
	}
}

// Watch runs the heartbeat loop for one connection until it is
// deregistered. Call as a goroutine right after Register.
func (s *Supervisor) Watch(c *Conn) {
	ticker := time.NewTicker(s.period(c.Device))
	defer ticker.Stop()

	for {
		select {
		case <-c.heartbeat:
			return
		case <-ticker.C:
			if s.tick(c) {
				s.terminate(c)
				return
			}
		}
	}
}

// tick advances the state machine one beat and reports whether the
// connection must be terminated.
func (s *Supervisor) tick(c *Conn) (dead bool) {
	c.mu.Lock()
	if c.state == StateAwaitingPong {
		c.missed++
		if c.missed >= maxMissedPongs {
			c.state = StateTerminated
			c.mu.Unlock()
			return true
		}
	} else {
		c.state = StateAwaitingPong
	}
	c.mu.Unlock()

	if err := c.Signal.Ping(); err != nil {
		log.Debug().Err(err).Str("module", "app.heartbeat").Str("sid", string(c.SID)).Msg("ping failed")
	}
	return false
}

// terminate runs the failure-safe eviction ordering: best-effort notice,
// force close, then deregister. The deregister step is never skipped.
func (s *Supervisor) terminate(c *Conn) {
	log.Info().Str("module", "app.heartbeat").Str("sid", string(c.SID)).Str("user", string(c.UserID())).Msg("liveness timeout, terminating")
	Deliver(c, protocol.ErrorEvent("liveness_timeout", "no heartbeat response, disconnecting"))
	c.Signal.Close()
	s.reg.Deregister(c)
}
