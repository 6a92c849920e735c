package planner

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/solarnav/groundlink/internal/missionstate"
)

// CSVFilename is the download name of the waypoint export.
const CSVFilename = "mission_waypoints.csv"

// HandleMapClick converts one map interaction into a waypoint appended at the
// end of the flight order. Coordinates are accepted as-is; values outside the
// nominal ranges are only noted.
func HandleMapClick(store *missionstate.Store, log *logrus.Logger, lat, lng float64) missionstate.Waypoint {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		log.WithFields(logrus.Fields{
			"lat": lat,
			"lng": lng,
		}).Debug("waypoint outside nominal coordinate range")
	}
	return store.AddWaypoint(lat, lng)
}

// ToCSV renders the plan as `latitude,longitude` rows in flight order. Values
// are plain numbers, unquoted, newline-separated, no trailing newline.
func ToCSV(waypoints []missionstate.Waypoint) string {
	var b strings.Builder
	b.WriteString("latitude,longitude")
	for _, wp := range waypoints {
		b.WriteByte('\n')
		b.WriteString(formatCoord(wp.Lat))
		b.WriteByte(',')
		b.WriteString(formatCoord(wp.Lng))
	}
	return b.String()
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
