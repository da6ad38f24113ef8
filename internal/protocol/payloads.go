package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/meetrix/signaling/internal/domain"
)

// JoinPayload carries everything a client declares when entering a room.
// Device is a tuning hint only (see domain.DeviceClass).
type JoinPayload struct {
	RoomID string `json:"roomId,omitempty"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Device string `json:"device,omitempty"`
	Host   bool   `json:"isHost,omitempty"`

	HostSettings *domain.HostSettings `json:"hostSettings,omitempty"`
}

// sessionDescription is the JSON shape of an SDP payload. We only check
// that it is well-formed enough to route; the body is relayed verbatim.
type sessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ValidateSDP checks that an offer/answer payload parses and matches the
// message type. The raw payload, not the parsed form, is what gets
// relayed.
func ValidateSDP(msgType string, payload json.RawMessage) error {
	var sd sessionDescription
	if err := json.Unmarshal(payload, &sd); err != nil {
		return &ProtocolError{Code: "bad_payload", Reason: "sdp payload is not valid json"}
	}
	want := webrtc.SDPTypeOffer
	if msgType == TypeAnswer {
		want = webrtc.SDPTypeAnswer
	}
	if sd.Type != want.String() {
		return &ProtocolError{Code: "bad_payload", Reason: fmt.Sprintf("%s payload has sdp type %q", msgType, sd.Type)}
	}
	if sd.SDP == "" {
		return MissingField(msgType, "payload.sdp")
	}
	return nil
}

// CandidatePayload is the JSON shape of a relayed ICE candidate.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (c CandidatePayload) ToPion() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
}

// ValidateCandidate checks an ice-candidate payload before it is buffered
// or relayed.
func ValidateCandidate(payload json.RawMessage) error {
	var c CandidatePayload
	if err := json.Unmarshal(payload, &c); err != nil {
		return &ProtocolError{Code: "bad_payload", Reason: "candidate payload is not valid json"}
	}
	if c.Candidate == "" {
		return MissingField(TypeICECandidate, "payload.candidate")
	}
	return nil
}

type ToggleMediaPayload struct {
	Kind    string `json:"type"` // "audio" or "video"
	Enabled bool   `json:"enabled"`
}

type ChatPayload struct {
	Message string `json:"message"`
}

type HandPayload struct {
	Raised bool `json:"raised"`
}

type RecordingPayload struct {
	IsRecording bool `json:"isRecording"`
}

type FilePayload struct {
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URL      string `json:"url,omitempty"`
}

type PollCreatePayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type PollVotePayload struct {
	PollID string `json:"pollId"`
	Option int    `json:"option"`
}

type PollEndPayload struct {
	PollID string `json:"pollId"`
}
