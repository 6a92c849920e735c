package commands

import (
	"encoding/json"

	uuid "github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/solarnav/groundlink/internal/missionstate"
)

// ErrEncode marks a waypoint plan that could not be serialized.
var ErrEncode = errors.New("mission cannot be encoded")

// Publisher is the outbound half of the transport session.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type missionPayload struct {
	Waypoints []missionstate.Waypoint `json:"waypoints"`
}

// EncodeSendMission serializes the waypoint plan verbatim, in flight order.
// Each send is a full self-contained plan; an empty plan encodes to an empty
// list, not null.
func EncodeSendMission(waypoints []missionstate.Waypoint) ([]byte, error) {
	if waypoints == nil {
		waypoints = []missionstate.Waypoint{}
	}
	b, err := json.Marshal(missionPayload{Waypoints: waypoints})
	if err != nil {
		return nil, errors.Wrap(ErrEncode, err.Error())
	}
	return b, nil
}

// SendMission publishes the store's current waypoint plan to the vehicle and
// returns the command ID the operator can correlate logs with. A dropped
// command (link down) is returned to the caller so the operator can retry;
// nothing is queued.
func SendMission(pub Publisher, store *missionstate.Store, log *logrus.Logger) (string, error) {
	snap := store.Snapshot()
	payload, err := EncodeSendMission(snap.Waypoints)
	if err != nil {
		return "", err
	}

	commandID := uuid.New().String()
	log.WithFields(logrus.Fields{
		"command_id": commandID,
		"waypoints":  len(snap.Waypoints),
	}).Info("dispatching mission")

	if err := pub.Publish(missionstate.TopicMission, payload); err != nil {
		return "", err
	}
	return commandID, nil
}
