package missionstate

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrPartialUpdate marks a structurally valid message whose derived field
// failed secondary parsing; the raw fields were still applied.
var ErrPartialUpdate = errors.New("derived field skipped")

// InitialStatus is shown until the first mission-status message arrives.
const InitialStatus = "No active mission"

// Waypoint is one stop of the flight order. Duplicates are permitted.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Position is the last-known vehicle position.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ProgressSample is one point of the progress time series.
type ProgressSample struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Snapshot is an immutable, consistent read of the store. History is ordered
// newest first.
type Snapshot struct {
	Waypoints      []Waypoint       `json:"waypoints"`
	Position       *Position        `json:"position,omitempty"`
	Status         string           `json:"status"`
	Progress       string           `json:"progress"`
	Duration       string           `json:"duration"`
	History        []string         `json:"history"`
	Samples        []ProgressSample `json:"samples"`
	DecodeFailures uint64           `json:"decodeFailures"`
}

// Store is the authoritative mission-state aggregate. Apply is intended for a
// single inbound goroutine; Snapshot and AddWaypoint are safe from any
// goroutine and never block the inbound path for long.
type Store struct {
	log *logrus.Logger

	// historyLimit caps history and sample growth; 0 means unbounded.
	historyLimit int

	mu             sync.Mutex
	waypoints      []Waypoint
	position       *Position
	status         string
	progress       string
	duration       string
	history        []string
	samples        []ProgressSample
	decodeFailures uint64
	lastErr        error

	changed chan struct{}
}

func NewStore(log *logrus.Logger, historyLimit int) *Store {
	return &Store{
		log:          log,
		historyLimit: historyLimit,
		status:       InitialStatus,
		changed:      make(chan struct{}, 1),
	}
}

// Apply folds one decoded event into the aggregate. Events must be applied in
// arrival order; a failed or unrecognized event leaves all state intact.
func (s *Store) Apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case PositionUpdate:
		s.position = &Position{Lat: e.Lat, Lon: e.Lon}

	case StatusUpdate:
		s.status = e.Text

	case HistoryAppended:
		s.history = append([]string{e.Text}, s.history...)
		if s.historyLimit > 0 && len(s.history) > s.historyLimit {
			s.history = s.history[:s.historyLimit]
		}

	case ProgressUpdate:
		s.progress = e.Progress
		s.duration = e.Duration
		value, err := strconv.ParseFloat(strings.TrimSuffix(e.Progress, "%"), 64)
		if err != nil {
			// Raw strings stay applied and still count as a visible change;
			// only the derived sample is skipped.
			s.lastErr = errors.Wrapf(ErrPartialUpdate, "progress %q", e.Progress)
			s.log.WithField("progress", e.Progress).Warn("unparseable progress percentage")
			break
		}
		s.samples = append(s.samples, ProgressSample{Label: e.Duration, Value: value})
		if s.historyLimit > 0 && len(s.samples) > s.historyLimit {
			s.samples = s.samples[len(s.samples)-s.historyLimit:]
		}

	case DecodeFailed:
		s.decodeFailures++
		s.lastErr = e.Err
		s.log.WithFields(logrus.Fields{
			"topic":   e.Topic,
			"payload": string(e.Payload),
		}).Warn("dropping undecodable message")
		return

	case Unrecognized:
		s.log.WithField("topic", e.Topic).Debug("message on unrecognized topic")
		return
	}

	s.notify()
}

// AddWaypoint appends one waypoint at the end of the flight order. This is the
// only planner-facing mutation.
func (s *Store) AddWaypoint(lat, lng float64) Waypoint {
	wp := Waypoint{Lat: lat, Lng: lng}

	s.mu.Lock()
	next := make([]Waypoint, 0, len(s.waypoints)+1)
	next = append(next, s.waypoints...)
	s.waypoints = append(next, wp)
	s.mu.Unlock()

	s.notify()
	return wp
}

// Snapshot returns a consistent copy of the current state; callers may hold it
// indefinitely without observing later mutations.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Waypoints:      append(make([]Waypoint, 0, len(s.waypoints)), s.waypoints...),
		Status:         s.status,
		Progress:       s.progress,
		Duration:       s.duration,
		History:        append(make([]string, 0, len(s.history)), s.history...),
		Samples:        append(make([]ProgressSample, 0, len(s.samples)), s.samples...),
		DecodeFailures: s.decodeFailures,
	}
	if s.position != nil {
		p := *s.position
		snap.Position = &p
	}
	return snap
}

// Changed delivers one coalesced signal per batch of mutations. Consumers read
// it and then call Snapshot.
func (s *Store) Changed() <-chan struct{} {
	return s.changed
}

// LastError reports the most recent decode or partial-update error, nil if
// none occurred.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// notify never blocks; pending signals coalesce into one.
func (s *Store) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}
