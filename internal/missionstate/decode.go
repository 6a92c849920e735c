package missionstate

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrDecode marks an inbound payload that failed to parse for its topic.
var ErrDecode = errors.New("malformed inbound payload")

type positionPayload struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

type progressPayload struct {
	Progress *string `json:"progress"`
	Duration *string `json:"duration"`
}

// Decode maps one (topic, payload) pair to an Event. Routing is by exact topic
// match only. Decode never fails: structurally bad payloads yield DecodeFailed
// and unknown topics yield Unrecognized.
func Decode(topic string, payload []byte) Event {
	switch topic {
	case TopicVehicleStatus:
		var p positionPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return DecodeFailed{Topic: topic, Payload: payload, Err: errors.Wrap(ErrDecode, err.Error())}
		}
		if p.Lat == nil || p.Lon == nil {
			return DecodeFailed{Topic: topic, Payload: payload, Err: errors.Wrap(ErrDecode, "missing lat/lon")}
		}
		return PositionUpdate{Lat: *p.Lat, Lon: *p.Lon}

	case TopicMissionStatus:
		return StatusUpdate{Text: string(payload)}

	case TopicMissionHistory:
		return HistoryAppended{Text: string(payload)}

	case TopicMissionProgress:
		var p progressPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return DecodeFailed{Topic: topic, Payload: payload, Err: errors.Wrap(ErrDecode, err.Error())}
		}
		if p.Progress == nil || p.Duration == nil {
			return DecodeFailed{Topic: topic, Payload: payload, Err: errors.Wrap(ErrDecode, "missing progress/duration")}
		}
		return ProgressUpdate{Progress: *p.Progress, Duration: *p.Duration}
	}

	return Unrecognized{Topic: topic}
}
