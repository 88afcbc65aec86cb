// Package model contains the domain types shared across the application.
package model

import "time"

// EventTypeGlucose is the sensor event type carrying a glucose measurement.
// Other event types (calibration, alerts) are not charted.
const EventTypeGlucose = 1

// Reading is a single glucose measurement in mg/dL. Readings are immutable
// once produced and ordered by timestamp, newest last.
type Reading struct {
	Timestamp time.Time
	Value     int
	Trend     Trend
}

// SensorEvent is one entry from the vendor's sensor event history endpoint.
// Only events with EventTypeID == EventTypeGlucose and Deleted == false are
// glucose readings.
type SensorEvent struct {
	EventTypeID int
	Deleted     bool
	EventDate   time.Time
	Value       float64
}

// IsGlucose reports whether the event is a live glucose measurement.
func (e SensorEvent) IsGlucose() bool {
	return e.EventTypeID == EventTypeGlucose && !e.Deleted
}

// UserState is the current state of the followed patient as reported by the
// patient list endpoint. CurrentGlucose is nil when the vendor reports no
// current value (sensor warming up, transmitter disconnected).
type UserState struct {
	UserID               string
	CurrentGlucose       *int
	Trend                SymbolicTrend
	TransmitterConnected bool
}
