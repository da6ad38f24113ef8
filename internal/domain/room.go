package domain

import "errors"

const MaxRoomIDLen = 64

var ErrRoomIDEmpty = errors.New("room id empty")

type RoomID string

func ValidRoomID(id RoomID) error {
	if id == "" {
		return ErrRoomIDEmpty
	}
	if len(id) > MaxRoomIDLen {
		return errors.New("room id too long")
	}
	return nil
}

// HostSettings are the per-room policy flags only the current host may
// change.
type HostSettings struct {
	HostVideoPriority     bool `json:"hostVideoPriority"`
	AllowParticipantUnpin bool `json:"allowParticipantUnpin"`
	Locked                bool `json:"locked"`
}

func DefaultHostSettings() HostSettings {
	return HostSettings{HostVideoPriority: true, AllowParticipantUnpin: true}
}
