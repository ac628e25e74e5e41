package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type ServiceKind string

const (
	ServiceHomeCare  ServiceKind = "home_care"
	ServiceVideoCall ServiceKind = "video_call"
)

// Physical reports whether the caregiver travels to an address.
func (k ServiceKind) Physical() bool {
	return k == ServiceHomeCare
}

// ServiceDetails is the per-kind part of a booking. Each kind carries only the
// fields it needs.
type ServiceDetails interface {
	Kind() ServiceKind
	Validate() error
	Location() string
}

// HomeCare is an in-person visit at the care seeker's address.
type HomeCare struct {
	Address string `json:"address"`
}

func (HomeCare) Kind() ServiceKind { return ServiceHomeCare }

func (h HomeCare) Validate() error {
	if strings.TrimSpace(h.Address) == "" {
		return errors.New("address is required for home care")
	}
	return nil
}

func (h HomeCare) Location() string { return strings.TrimSpace(h.Address) }

// VideoCall is a remote consultation.
type VideoCall struct{}

func (VideoCall) Kind() ServiceKind { return ServiceVideoCall }
func (VideoCall) Validate() error { return nil }
func (VideoCall) Location() string { return "" }

// ServiceEnvelope is the JSON form of ServiceDetails:
//
//	{"kind":"home_care","homeCare":{"address":"..."}}
//	{"kind":"video_call"}
type ServiceEnvelope struct {
	Details ServiceDetails
}

type serviceEnvelopeWire struct {
	Kind      ServiceKind     `json:"kind"`
	HomeCare  *HomeCare       `json:"homeCare,omitempty"`
	VideoCall json.RawMessage `json:"videoCall,omitempty"`
}

func (e *ServiceEnvelope) UnmarshalJSON(data []byte) error {
	var w serviceEnvelopeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case ServiceHomeCare:
		if w.HomeCare == nil {
			return errors.New("homeCare details are required for kind home_care")
		}
		e.Details = *w.HomeCare
	case ServiceVideoCall:
		if w.HomeCare != nil {
			return errors.New("homeCare details are not allowed for kind video_call")
		}
		e.Details = VideoCall{}
	case "":
		return errors.New("service kind is required")
	default:
		return fmt.Errorf("unknown service kind %q", w.Kind)
	}
	return nil
}

func (e ServiceEnvelope) MarshalJSON() ([]byte, error) {
	if e.Details == nil {
		return []byte("null"), nil
	}
	w := serviceEnvelopeWire{Kind: e.Details.Kind()}
	if hc, ok := e.Details.(HomeCare); ok {
		w.HomeCare = &hc
	}
	return json.Marshal(w)
}

// ServiceDetailsOf rebuilds the variant stored on a booking.
func ServiceDetailsOf(b *Booking) ServiceDetails {
	switch b.ServiceKind {
	case ServiceHomeCare:
		return HomeCare{Address: b.Address}
	case ServiceVideoCall:
		return VideoCall{}
	}
	return nil
}
