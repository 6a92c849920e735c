package missionstate

// MQTT topics of the vehicle wire contract.
const (
	TopicVehicleStatus   = "vehicle/status"
	TopicMission         = "vehicle/mission"
	TopicMissionStatus   = "vehicle/mission_status"
	TopicMissionHistory  = "vehicle/mission_history"
	TopicMissionControl  = "vehicle/mission_control" // reserved, unused by current logic
	TopicMissionProgress = "vehicle/mission_progress"
)

// InboundTopics returns the topics the ground station subscribes to.
func InboundTopics() []string {
	return []string{
		TopicVehicleStatus,
		TopicMissionStatus,
		TopicMissionHistory,
		TopicMissionProgress,
	}
}

// Event is one decoded inbound message. Exactly one variant is produced per
// (topic, payload) pair; malformed payloads become DecodeFailed instead of an
// error so the inbound stream never stops.
type Event interface {
	isEvent()
}

// PositionUpdate carries the latest vehicle coordinates.
type PositionUpdate struct {
	Lat float64
	Lon float64
}

// StatusUpdate carries the human-readable mission status verbatim.
type StatusUpdate struct {
	Text string
}

// HistoryAppended carries one history log record.
type HistoryAppended struct {
	Text string
}

// ProgressUpdate carries the raw progress and duration strings; numeric
// derivation happens in the store.
type ProgressUpdate struct {
	Progress string
	Duration string
}

// DecodeFailed marks a payload that could not be parsed for its topic. The
// store counts it and keeps previous state intact.
type DecodeFailed struct {
	Topic   string
	Payload []byte
	Err     error
}

// Unrecognized marks a message on a topic this station does not know.
type Unrecognized struct {
	Topic string
}

func (PositionUpdate) isEvent()  {}
func (StatusUpdate) isEvent()    {}
func (HistoryAppended) isEvent() {}
func (ProgressUpdate) isEvent()  {}
func (DecodeFailed) isEvent()    {}
func (Unrecognized) isEvent()    {}
