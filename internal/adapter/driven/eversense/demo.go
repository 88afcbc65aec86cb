package eversense

import (
	"context"
	"math/rand"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GlucoseAPI = (*DemoAPI)(nil)

// DemoAPI is an in-process stand-in for the vendor cloud, used when
// GLUCOPANEL_DEMO is set. It accepts any credentials and synthesizes a
// plausible glucose curve: a random walk clamped to 70-200 mg/dL with a
// reading every 5 minutes.
type DemoAPI struct {
	rng   *rand.Rand
	value float64
	now   func() time.Time
}

// NewDemoAPI creates a demo API seeded from the given source. now defaults to
// time.Now when nil.
func NewDemoAPI(seed int64, now func() time.Time) *DemoAPI {
	if now == nil {
		now = time.Now
	}
	rng := rand.New(rand.NewSource(seed))
	return &DemoAPI{
		rng:   rng,
		value: 95 + rng.Float64()*40,
		now:   now,
	}
}

// Login accepts any non-empty credentials and issues a half-day demo token.
func (d *DemoAPI) Login(_ context.Context, username, password string) (model.Token, error) {
	if username == "" || password == "" {
		return model.Token{}, &driven.AuthError{StatusCode: 400, Message: "invalid_grant"}
	}
	return model.Token{AccessToken: "demo-token", ExpiresIn: 43200}, nil
}

// FetchPatientList reports a single demo patient with the current walk value.
func (d *DemoAPI) FetchPatientList(_ context.Context, _ string) ([]model.UserState, error) {
	d.step()
	current := int(d.value + 0.5)

	return []model.UserState{{
		UserID:               "demo-user",
		CurrentGlucose:       &current,
		Trend:                model.SymbolicFlat,
		TransmitterConnected: true,
	}}, nil
}

// FetchSensorEvents synthesizes glucose events every 5 minutes across the
// requested range.
func (d *DemoAPI) FetchSensorEvents(_ context.Context, _, _ string, start, end time.Time) ([]model.SensorEvent, error) {
	var events []model.SensorEvent
	for ts := start; ts.Before(end); ts = ts.Add(5 * time.Minute) {
		d.step()
		events = append(events, model.SensorEvent{
			EventTypeID: model.EventTypeGlucose,
			EventDate:   ts,
			Value:       d.value,
		})
	}
	return events, nil
}

// step advances the random walk by up to +/- 5 mg/dL, clamped to 70-200.
func (d *DemoAPI) step() {
	d.value += (d.rng.Float64() - 0.5) * 10
	if d.value < 70 {
		d.value = 70
	}
	if d.value > 200 {
		d.value = 200
	}
}
