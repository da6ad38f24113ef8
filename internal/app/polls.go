package app

import (
	"errors"

	"github.com/google/uuid"

	"github.com/meetrix/signaling/internal/domain"
	"github.com/meetrix/signaling/internal/protocol"
)

var (
	ErrPollNotFound   = errors.New("poll not found")
	ErrPollEnded      = errors.New("poll already ended")
	ErrBadPollOption  = errors.New("poll option out of range")
	ErrEmptyPoll      = errors.New("poll needs a question and at least two options")
	ErrTooManyOptions = errors.New("too many poll options")
)

const maxPollOptions = 10

// poll is live vote state kept in-room so poll-ended can carry results.
type poll struct {
	id       string
	question string
	options  []string
	votes    []int
	voted    map[domain.UserID]int
	ownerID  domain.UserID
	ended    bool
}

func (p *poll) snapshot() protocol.PollSnapshot {
	votes := make([]int, len(p.votes))
	copy(votes, p.votes)
	return protocol.PollSnapshot{
		ID:       p.id,
		Question: p.question,
		Options:  append([]string(nil), p.options...),
		Votes:    votes,
		OwnerID:  p.ownerID,
		Ended:    p.ended,
	}
}

// CreatePoll starts a poll; requires admin or host.
func (t *RoomTable) CreatePoll(c *Conn, question string, options []string) (protocol.PollSnapshot, error) {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}
	if question == "" || len(options) < 2 {
		return protocol.PollSnapshot{}, ErrEmptyPoll
	}
	if len(options) > maxPollOptions {
		return protocol.PollSnapshot{}, ErrTooManyOptions
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	p, ok := room.participants[userID]
	if !ok {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}
	if !p.Privileged() {
		return protocol.PollSnapshot{}, &protocol.AuthorizationError{Action: "create a poll"}
	}

	pl := &poll{
		id:       uuid.NewString(),
		question: question,
		options:  append([]string(nil), options...),
		votes:    make([]int, len(options)),
		voted:    make(map[domain.UserID]int),
		ownerID:  userID,
	}
	room.polls[pl.id] = pl
	snap := pl.snapshot()
	room.broadcastLocked(protocol.PollCreatedEvent(room.ID, snap), "")
	return snap, nil
}

// Vote records a member's choice. Re-voting moves the vote to the new
// option.
func (t *RoomTable) Vote(c *Conn, pollID string, option int) (protocol.PollSnapshot, error) {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if _, ok := room.participants[userID]; !ok {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}
	pl, ok := room.polls[pollID]
	if !ok {
		return protocol.PollSnapshot{}, ErrPollNotFound
	}
	if pl.ended {
		return protocol.PollSnapshot{}, ErrPollEnded
	}
	if option < 0 || option >= len(pl.options) {
		return protocol.PollSnapshot{}, ErrBadPollOption
	}
	if prev, ok := pl.voted[userID]; ok {
		pl.votes[prev]--
	}
	pl.votes[option]++
	pl.voted[userID] = option
	snap := pl.snapshot()
	room.broadcastLocked(protocol.PollVoteEvent(room.ID, snap, userID), "")
	return snap, nil
}

// EndPoll closes a poll; requires admin or host. The final tally fans out
// with the poll-ended event.
func (t *RoomTable) EndPoll(c *Conn, pollID string) (protocol.PollSnapshot, error) {
	userID := c.UserID()
	room, ok := t.Get(c.RoomID())
	if !ok || userID == "" {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	p, ok := room.participants[userID]
	if !ok {
		return protocol.PollSnapshot{}, ErrNotInRoom
	}
	if !p.Privileged() {
		return protocol.PollSnapshot{}, &protocol.AuthorizationError{Action: "end a poll"}
	}
	pl, ok := room.polls[pollID]
	if !ok {
		return protocol.PollSnapshot{}, ErrPollNotFound
	}
	if pl.ended {
		return protocol.PollSnapshot{}, ErrPollEnded
	}
	pl.ended = true
	snap := pl.snapshot()
	room.broadcastLocked(protocol.PollEndedEvent(room.ID, snap), "")
	return snap, nil
}
