package models

import "time"

type ControlField string

const (
	ControlMicrophone  ControlField = "microphone"
	ControlCamera      ControlField = "camera"
	ControlSpeaker     ControlField = "speaker"
	ControlScreenShare ControlField = "screen_share"
)

func (f ControlField) Valid() bool {
	switch f {
	case ControlMicrophone, ControlCamera, ControlSpeaker, ControlScreenShare:
		return true
	}
	return false
}

// ControlUpdate sets one of a party's session control flags. Seq is monotonic per
// session, party and field. An update whose Seq is not above the stored one is
// stale and dropped.
type ControlUpdate struct {
	SessionID string       `json:"sessionId"`
	PartyID   string       `json:"partyId"`
	Field     ControlField `json:"field"`
	Value     bool         `json:"value"`
	Seq       uint64       `json:"seq"`
	At        time.Time    `json:"at"`
}

// ControlValue is the last accepted value of one field.
type ControlValue struct {
	Value   bool   `json:"value"`
	Seq     uint64 `json:"seq"`
	PartyID string `json:"partyId,omitempty"`
}

// ControlState is the current flags for a session, keyed by party then field.
type ControlState struct {
	SessionID string                                   `json:"sessionId"`
	Parties   map[string]map[ControlField]ControlValue `json:"parties"`
}
