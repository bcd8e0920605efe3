package mapper

import (
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

const (
	secondsPerHour = 3600.0
	metersPerKm    = 1000.0
)

// MapGarminDaily combina resumen diario, sueño y body battery de un día.
// ok=false significa "sin datos": ningún campo quedó informado.
func MapGarminDaily(userID int64, date time.Time, summary, sleep, bodyBattery Payload) (types.DailyMetric, bool) {
	m := types.DailyMetric{UserID: userID, Date: types.Day(date)}

	m.SleepHours = floatPtr(hours(pick(
		from(sleep, "dailySleepDTO.sleepTimeSeconds"),
		from(summary, "sleepSeconds", "sleepingSeconds", "measurableAsleepDuration", "totalSleepSeconds"),
	)))
	m.DeepSleepHours = stageHours(sleep, "deep")
	m.LightSleepHours = stageHours(sleep, "light")
	m.RemSleepHours = stageHours(sleep, "rem")
	m.SleepScore = intPtr(pick(
		from(sleep, "dailySleepDTO.sleepScores.overall.value", "dailySleepDTO.sleepScores.overall",
			"sleepScore", "overallSleepScore", "sleepScores.overall"),
	))

	rhr := intPtr(firstNumber(summary, "restingHeartRate", "averageRestingHeartRate"))
	m.RestingHeartRate = rhr
	if rhr != nil {
		v := *rhr
		m.RestingHR = &v
	}

	m.StressLevel = intPtr(firstNumber(summary, "averageStressLevel", "maxStressLevel"))
	m.ExerciseMinutes = intensityMinutes(summary)
	m.Steps = intPtr(firstNumber(summary, "totalSteps", "steps"))
	m.Calories = intPtr(firstNumber(summary, "totalKilocalories", "kilocalories"))
	m.DistanceKm = floatPtr(km(firstNumber(summary, "totalDistanceMeters", "totalDistance", "distance")))
	m.BodyBattery = bodyBatteryValue(summary, bodyBattery)
	m.SpO2 = floatPtr(firstNumber(summary, "averageSpo2", "averageSpO2", "spo2"))
	m.RespirationRate = floatPtr(firstNumber(summary, "avgWakingRespirationValue", "averageRespiration", "respiration"))

	if m.Empty() {
		return m, false
	}
	return m, true
}

// stageHours busca <stage>SleepSeconds en dailySleepDTO, sleepStages o la raíz.
func stageHours(sleep Payload, stage string) *float64 {
	key := stage + "SleepSeconds"
	return floatPtr(hours(firstNumber(sleep, "dailySleepDTO."+key, "sleepStages."+key, key)))
}

// intensityMinutes suma moderados + vigorosos; nil si el total no es > 0.
func intensityMinutes(summary Payload) *int {
	mod, okM := firstNumber(summary, "intensityMinutes.moderateValue", "activeMinutes", "moderateIntensityMinutes")
	vig, okV := firstNumber(summary, "intensityMinutes.vigorousValue", "vigorousIntensityMinutes")
	if !okM && !okV {
		return nil
	}
	total := 0.0
	if okM {
		total += mod
	}
	if okV {
		total += vig
	}
	if total <= 0 {
		return nil
	}
	return intPtr(total, true)
}

// bodyBatteryValue: primero el resumen, después el reporte de body battery
// (máximo de la lista bodyBatteryLevel o un escalar).
func bodyBatteryValue(summary, report Payload) *int {
	if f, ok := firstNumber(summary, "bodyBatteryMostRecentValue", "bodyBatteryHighestValue"); ok {
		return intPtr(f, true)
	}
	if report == nil {
		return nil
	}
	if list, ok := report["bodyBatteryLevel"].([]any); ok {
		best, found := 0.0, false
		for _, item := range list {
			var f float64
			var ok bool
			if m, isMap := item.(map[string]any); isMap {
				f, ok = firstNumber(m, "value", "level")
			} else {
				f, ok = number(item)
			}
			if ok && (!found || f > best) {
				best, found = f, true
			}
		}
		if found {
			return intPtr(best, true)
		}
	}
	return intPtr(firstNumber(report, "bodyBatteryLevel", "highestBodyBatteryLevel", "lowestBodyBatteryLevel"))
}
