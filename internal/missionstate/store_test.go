package missionstate_test

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/solarnav/groundlink/internal/missionstate"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newStore(t *testing.T) *missionstate.Store {
	t.Helper()
	return missionstate.NewStore(testLogger(), 0)
}

func TestStoreInitialState(t *testing.T) {
	snap := newStore(t).Snapshot()

	if snap.Status != missionstate.InitialStatus {
		t.Errorf("status = %q, want %q", snap.Status, missionstate.InitialStatus)
	}
	if snap.Position != nil {
		t.Errorf("position = %+v, want nil", snap.Position)
	}
	if len(snap.Waypoints) != 0 || len(snap.History) != 0 || len(snap.Samples) != 0 {
		t.Errorf("unexpected non-empty initial state: %+v", snap)
	}
	if snap.Waypoints == nil || snap.History == nil || snap.Samples == nil {
		t.Error("snapshot slices must be non-nil")
	}
}

func TestStorePosition(t *testing.T) {
	t.Run("last update wins", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.PositionUpdate{Lat: 1, Lon: 2})
		store.Apply(missionstate.PositionUpdate{Lat: 3, Lon: 4})

		snap := store.Snapshot()
		if snap.Position == nil || snap.Position.Lat != 3 || snap.Position.Lon != 4 {
			t.Errorf("position = %+v, want {3 4}", snap.Position)
		}
	})

	t.Run("decode failure preserves previous position", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.PositionUpdate{Lat: 1, Lon: 2})
		store.Apply(missionstate.DecodeFailed{Topic: missionstate.TopicVehicleStatus, Err: missionstate.ErrDecode})

		snap := store.Snapshot()
		if snap.Position == nil || snap.Position.Lat != 1 || snap.Position.Lon != 2 {
			t.Errorf("position = %+v, want {1 2}", snap.Position)
		}
		if snap.DecodeFailures != 1 {
			t.Errorf("decodeFailures = %d, want 1", snap.DecodeFailures)
		}
		if store.LastError() == nil {
			t.Error("LastError must report the decode failure")
		}
	})
}

func TestStoreHistory(t *testing.T) {
	t.Run("newest first", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.HistoryAppended{Text: "a"})
		store.Apply(missionstate.HistoryAppended{Text: "b"})

		snap := store.Snapshot()
		if len(snap.History) != 2 || snap.History[0] != "b" || snap.History[1] != "a" {
			t.Errorf("history = %v, want [b a]", snap.History)
		}
	})

	t.Run("arrival order, duplicates kept", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.HistoryAppended{Text: "first"})
		store.Apply(missionstate.HistoryAppended{Text: "second"})
		store.Apply(missionstate.HistoryAppended{Text: "second"})

		snap := store.Snapshot()
		want := []string{"second", "second", "first"}
		for i, w := range want {
			if snap.History[i] != w {
				t.Fatalf("history = %v, want %v", snap.History, want)
			}
		}
	})

	t.Run("capped when a limit is set", func(t *testing.T) {
		store := missionstate.NewStore(testLogger(), 2)
		store.Apply(missionstate.HistoryAppended{Text: "a"})
		store.Apply(missionstate.HistoryAppended{Text: "b"})
		store.Apply(missionstate.HistoryAppended{Text: "c"})

		snap := store.Snapshot()
		if len(snap.History) != 2 || snap.History[0] != "c" || snap.History[1] != "b" {
			t.Errorf("history = %v, want [c b]", snap.History)
		}
	})
}

func TestStoreProgress(t *testing.T) {
	t.Run("valid percentage appends a sample", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.ProgressUpdate{Progress: "42%", Duration: "10s"})

		snap := store.Snapshot()
		if snap.Progress != "42%" || snap.Duration != "10s" {
			t.Errorf("raw = %q/%q, want 42%%/10s", snap.Progress, snap.Duration)
		}
		if len(snap.Samples) != 1 || snap.Samples[0].Label != "10s" || snap.Samples[0].Value != 42.0 {
			t.Errorf("samples = %+v, want [{10s 42}]", snap.Samples)
		}
	})

	t.Run("unparseable percentage is a partial update", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.ProgressUpdate{Progress: "42%", Duration: "10s"})
		store.Apply(missionstate.ProgressUpdate{Progress: "bad", Duration: "11s"})

		snap := store.Snapshot()
		if snap.Progress != "bad" || snap.Duration != "11s" {
			t.Errorf("raw strings must still be applied, got %q/%q", snap.Progress, snap.Duration)
		}
		if len(snap.Samples) != 1 {
			t.Errorf("samples = %+v, want the single valid one", snap.Samples)
		}
		if !errors.Is(store.LastError(), missionstate.ErrPartialUpdate) {
			t.Errorf("LastError = %v, want ErrPartialUpdate", store.LastError())
		}
	})

	t.Run("percent sign is optional", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.ProgressUpdate{Progress: "55", Duration: "1m"})

		snap := store.Snapshot()
		if len(snap.Samples) != 1 || snap.Samples[0].Value != 55.0 {
			t.Errorf("samples = %+v, want [{1m 55}]", snap.Samples)
		}
	})

	t.Run("repeated labels are kept", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.ProgressUpdate{Progress: "10%", Duration: "5s"})
		store.Apply(missionstate.ProgressUpdate{Progress: "20%", Duration: "5s"})

		if got := len(store.Snapshot().Samples); got != 2 {
			t.Errorf("samples = %d, want 2", got)
		}
	})
}

func TestStoreStatus(t *testing.T) {
	store := newStore(t)
	store.Apply(missionstate.StatusUpdate{Text: "Climbing"})
	store.Apply(missionstate.StatusUpdate{Text: "Cruising"})

	if got := store.Snapshot().Status; got != "Cruising" {
		t.Errorf("status = %q, want Cruising", got)
	}
}

func TestStoreWaypoints(t *testing.T) {
	t.Run("insertion order", func(t *testing.T) {
		store := newStore(t)
		store.AddWaypoint(1.5, 2.5)
		store.AddWaypoint(-3, 4)

		snap := store.Snapshot()
		if len(snap.Waypoints) != 2 {
			t.Fatalf("waypoints = %+v", snap.Waypoints)
		}
		if snap.Waypoints[0] != (missionstate.Waypoint{Lat: 1.5, Lng: 2.5}) {
			t.Errorf("first waypoint = %+v", snap.Waypoints[0])
		}
		if snap.Waypoints[1] != (missionstate.Waypoint{Lat: -3, Lng: 4}) {
			t.Errorf("second waypoint = %+v", snap.Waypoints[1])
		}
	})

	t.Run("snapshot is isolated from later mutations", func(t *testing.T) {
		store := newStore(t)
		store.AddWaypoint(1, 1)
		snap := store.Snapshot()
		store.AddWaypoint(2, 2)
		store.Apply(missionstate.HistoryAppended{Text: "x"})

		if len(snap.Waypoints) != 1 || len(snap.History) != 0 {
			t.Errorf("snapshot mutated after the fact: %+v", snap)
		}
	})
}

func TestStoreChanged(t *testing.T) {
	t.Run("signals coalesce", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.StatusUpdate{Text: "a"})
		store.Apply(missionstate.StatusUpdate{Text: "b"})

		select {
		case <-store.Changed():
		default:
			t.Fatal("expected a pending change signal")
		}
		select {
		case <-store.Changed():
			t.Fatal("signals must coalesce into one")
		default:
		}
	})

	t.Run("partial updates still signal", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.ProgressUpdate{Progress: "bad", Duration: "11s"})

		snap := store.Snapshot()
		if snap.Progress != "bad" || snap.Duration != "11s" {
			t.Fatalf("raw = %q/%q, want bad/11s", snap.Progress, snap.Duration)
		}
		select {
		case <-store.Changed():
		default:
			t.Fatal("raw-string overwrite must emit a change signal")
		}
	})

	t.Run("dropped events do not signal", func(t *testing.T) {
		store := newStore(t)
		store.Apply(missionstate.Unrecognized{Topic: "vehicle/other"})
		store.Apply(missionstate.DecodeFailed{Topic: missionstate.TopicVehicleStatus, Err: missionstate.ErrDecode})

		select {
		case <-store.Changed():
			t.Fatal("no-op events must not signal a change")
		default:
		}
	})
}
