package mapper

import (
	"math"
	"strings"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

// start_date_local viene sin zona ("2024-03-10T07:30:00Z" o sin Z).
var localLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, l := range localLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MapStravaActivity mapea una actividad. ok=false si no trae id.
// La fecha sale de start_date, después start_date_local, después fallback.
func MapStravaActivity(userID int64, p Payload, fallback time.Time) (types.Activity, bool) {
	idF, ok := firstNumber(p, "id")
	if !ok || idF <= 0 || idF != math.Trunc(idF) {
		return types.Activity{}, false
	}

	a := types.Activity{ExternalID: int64(idF), UserID: userID}

	var start, startLocal *time.Time
	if s, ok := firstString(p, "start_date"); ok {
		if t, ok := parseTime(s); ok {
			u := t.UTC()
			start = &u
		}
	}
	if s, ok := firstString(p, "start_date_local"); ok {
		if t, ok := parseTime(s); ok {
			startLocal = &t
		}
	}
	a.StartDate, a.StartDateLocal = start, startLocal
	switch {
	case start != nil:
		a.Date = types.Day(*start)
	case startLocal != nil:
		a.Date = types.Day(*startLocal)
	default:
		a.Date = types.Day(fallback)
	}

	if s, ok := firstString(p, "type", "sport_type"); ok {
		a.ActivityType = &s
	}
	if s, ok := firstString(p, "name"); ok {
		a.Name = &s
	}
	a.DistanceMeters = floatPtr(firstNumber(p, "distance"))
	a.MovingTimeSeconds = intPtr(firstNumber(p, "moving_time"))
	a.ElapsedTimeSeconds = intPtr(firstNumber(p, "elapsed_time"))
	a.AverageSpeedMps = floatPtr(firstNumber(p, "average_speed"))
	a.MaxSpeedMps = floatPtr(firstNumber(p, "max_speed"))
	a.AverageHeartrate = floatPtr(firstNumber(p, "average_heartrate"))
	a.MaxHeartrate = floatPtr(firstNumber(p, "max_heartrate"))
	a.ElevationGainMeters = floatPtr(firstNumber(p, "total_elevation_gain"))
	a.Calories = floatPtr(firstNumber(p, "calories"))

	return a, true
}
