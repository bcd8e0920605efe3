package types

import "time"

// DailyMetric es el registro canónico por (usuario, día).
// Cada campo es nil cuando el proveedor no lo informó; nunca se rellena con 0.
type DailyMetric struct {
	UserID int64
	Date   time.Time // medianoche UTC

	SleepHours      *float64
	LightSleepHours *float64
	DeepSleepHours  *float64
	RemSleepHours   *float64
	SleepScore      *int

	RestingHeartRate *int
	RestingHR        *int
	StressLevel      *int
	ExerciseMinutes  *int

	Steps           *int
	Calories        *int
	DistanceKm      *float64
	BodyBattery     *int
	SpO2            *float64
	RespirationRate *float64

	UpdatedAt time.Time
}

// Empty es true si no hay ningún campo informado.
func (m DailyMetric) Empty() bool {
	return m.SleepHours == nil && m.LightSleepHours == nil && m.DeepSleepHours == nil &&
		m.RemSleepHours == nil && m.SleepScore == nil && m.RestingHeartRate == nil &&
		m.RestingHR == nil && m.StressLevel == nil && m.ExerciseMinutes == nil &&
		m.Steps == nil && m.Calories == nil && m.DistanceKm == nil && m.BodyBattery == nil &&
		m.SpO2 == nil && m.RespirationRate == nil
}

// Merge aplica los campos no-nil de in sobre m (merge no destructivo).
func (m *DailyMetric) Merge(in DailyMetric) {
	mergeF(&m.SleepHours, in.SleepHours)
	mergeF(&m.LightSleepHours, in.LightSleepHours)
	mergeF(&m.DeepSleepHours, in.DeepSleepHours)
	mergeF(&m.RemSleepHours, in.RemSleepHours)
	mergeI(&m.SleepScore, in.SleepScore)
	mergeI(&m.RestingHeartRate, in.RestingHeartRate)
	mergeI(&m.RestingHR, in.RestingHR)
	mergeI(&m.StressLevel, in.StressLevel)
	mergeI(&m.ExerciseMinutes, in.ExerciseMinutes)
	mergeI(&m.Steps, in.Steps)
	mergeI(&m.Calories, in.Calories)
	mergeF(&m.DistanceKm, in.DistanceKm)
	mergeI(&m.BodyBattery, in.BodyBattery)
	mergeF(&m.SpO2, in.SpO2)
	mergeF(&m.RespirationRate, in.RespirationRate)
}

// Activity es una sesión de ejercicio, única por ExternalID.
type Activity struct {
	ExternalID int64
	UserID     int64
	Date       time.Time // día de la actividad (medianoche UTC)

	ActivityType        *string
	Name                *string
	DistanceMeters      *float64
	MovingTimeSeconds   *int
	ElapsedTimeSeconds  *int
	AverageSpeedMps     *float64
	MaxSpeedMps         *float64
	AverageHeartrate    *float64
	MaxHeartrate        *float64
	ElevationGainMeters *float64
	Calories            *float64
	StartDate           *time.Time
	StartDateLocal      *time.Time

	UpdatedAt time.Time
}

// Merge aplica los campos no-nil de in sobre a. Date siempre se toma de in.
func (a *Activity) Merge(in Activity) {
	a.UserID = in.UserID
	if !in.Date.IsZero() {
		a.Date = in.Date
	}
	mergeS(&a.ActivityType, in.ActivityType)
	mergeS(&a.Name, in.Name)
	mergeF(&a.DistanceMeters, in.DistanceMeters)
	mergeI(&a.MovingTimeSeconds, in.MovingTimeSeconds)
	mergeI(&a.ElapsedTimeSeconds, in.ElapsedTimeSeconds)
	mergeF(&a.AverageSpeedMps, in.AverageSpeedMps)
	mergeF(&a.MaxSpeedMps, in.MaxSpeedMps)
	mergeF(&a.AverageHeartrate, in.AverageHeartrate)
	mergeF(&a.MaxHeartrate, in.MaxHeartrate)
	mergeF(&a.ElevationGainMeters, in.ElevationGainMeters)
	mergeF(&a.Calories, in.Calories)
	mergeT(&a.StartDate, in.StartDate)
	mergeT(&a.StartDateLocal, in.StartDateLocal)
}

// ExerciseMinutes son los minutos enteros de movimiento (floor).
func (a *Activity) ExerciseMinutes() int {
	if a == nil || a.MovingTimeSeconds == nil || *a.MovingTimeSeconds <= 0 {
		return 0
	}
	return *a.MovingTimeSeconds / 60
}

// Day normaliza t a medianoche UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mergeF(dst **float64, src *float64) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeI(dst **int, src *int) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeS(dst **string, src *string) {
	if src != nil {
		v := *src
		*dst = &v
	}
}

func mergeT(dst **time.Time, src *time.Time) {
	if src != nil {
		v := *src
		*dst = &v
	}
}
