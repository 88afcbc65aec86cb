// Package eversense implements the GlucoseAPI port against the Eversense DMS
// cloud endpoints.
package eversense

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.GlucoseAPI = (*Client)(nil)

// Credentials of the vendor's own mobile app; the DMS API has no per-client
// registration, every follower client authenticates as the app.
const (
	clientID     = "eversenseMMAAndroid"
	clientSecret = "6ksPx#]~wQ3U"
)

const (
	patientListPath  = "/api/care/GetFollowingPatientList"
	sensorEventsPath = "/api/care/GetFollowingUserSensorGlucose"
)

// Client implements the driven.GlucoseAPI port over HTTP. It holds no session
// state; tokens are passed in by the caller on every request.
type Client struct {
	http     *http.Client
	loginURL string
	apiURL   string
}

// New creates a vendor API client with an httpcache memory-cache transport
// (conditional request caching) and a 30 second request timeout.
func New(loginURL, apiURL string) *Client {
	return &Client{
		http: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   30 * time.Second,
		},
		loginURL: loginURL,
		apiURL:   strings.TrimRight(apiURL, "/"),
	}
}

// tokenResponse is the wire format of the login endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Login exchanges a username/password for a bearer token via the password
// grant. Returns *driven.AuthError on any failure.
func (c *Client) Login(ctx context.Context, username, password string) (model.Token, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"username":      {username},
		"password":      {password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.Token{}, &driven.AuthError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return model.Token{}, &driven.AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Token{}, &driven.AuthError{StatusCode: resp.StatusCode, Message: bodySnippet(resp.Body, resp.Status)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return model.Token{}, &driven.AuthError{Message: fmt.Sprintf("decoding token response: %v", err)}
	}
	if tr.AccessToken == "" {
		return model.Token{}, &driven.AuthError{Message: "login response carried no access token"}
	}

	slog.Debug("vendor login succeeded", "expires_in", tr.ExpiresIn)

	return model.Token{AccessToken: tr.AccessToken, ExpiresIn: tr.ExpiresIn}, nil
}

// patientEntry is one element of the patient list response. UserID arrives as
// a number on production accounts and as a string on sandbox ones.
type patientEntry struct {
	UserID                 flexID   `json:"UserID"`
	CurrentGlucose         *float64 `json:"CurrentGlucose"`
	GlucoseTrend           int      `json:"GlucoseTrend"`
	IsTransmitterConnected bool     `json:"IsTransmitterConnected"`
}

// FetchPatientList returns the states of all followed patients, mapping the
// numeric trend code through the fixed symbolic table.
func (c *Client) FetchPatientList(ctx context.Context, token string) ([]model.UserState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+patientListPath, nil)
	if err != nil {
		return nil, &driven.FetchError{Endpoint: "patient-list", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &driven.FetchError{Endpoint: "patient-list", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &driven.FetchError{Endpoint: "patient-list", StatusCode: resp.StatusCode, Message: bodySnippet(resp.Body, resp.Status)}
	}

	var entries []patientEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &driven.FetchError{Endpoint: "patient-list", Message: fmt.Sprintf("decoding response: %v", err)}
	}

	states := make([]model.UserState, 0, len(entries))
	for _, e := range entries {
		states = append(states, mapUserState(e))
	}

	return states, nil
}

// sensorEventsRequest is the wire format of the sensor events request body.
// The vendor expects millisecond-precision UTC timestamps.
type sensorEventsRequest struct {
	UserID    string `json:"UserID"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// sensorEventEntry is one element of the sensor events response.
type sensorEventEntry struct {
	EventTypeID int     `json:"EventTypeID"`
	Deleted     bool    `json:"Deleted"`
	EventDate   string  `json:"EventDate"`
	Value       float64 `json:"Value"`
}

const eventDateFormat = "2006-01-02T15:04:05.000Z"

// FetchSensorEvents returns raw sensor events for the user between start and
// end. Entries without a parseable EventDate are dropped.
func (c *Client) FetchSensorEvents(ctx context.Context, token, userID string, start, end time.Time) ([]model.SensorEvent, error) {
	body, err := json.Marshal(sensorEventsRequest{
		UserID:    userID,
		StartDate: start.UTC().Format(eventDateFormat),
		EndDate:   end.UTC().Format(eventDateFormat),
	})
	if err != nil {
		return nil, &driven.FetchError{Endpoint: "sensor-events", Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+sensorEventsPath, strings.NewReader(string(body)))
	if err != nil {
		return nil, &driven.FetchError{Endpoint: "sensor-events", Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &driven.FetchError{Endpoint: "sensor-events", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &driven.FetchError{Endpoint: "sensor-events", StatusCode: resp.StatusCode, Message: bodySnippet(resp.Body, resp.Status)}
	}

	var entries []sensorEventEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &driven.FetchError{Endpoint: "sensor-events", Message: fmt.Sprintf("decoding response: %v", err)}
	}

	events := make([]model.SensorEvent, 0, len(entries))
	for _, e := range entries {
		ts, err := parseEventDate(e.EventDate)
		if err != nil {
			slog.Warn("dropping sensor event with bad date", "event_date", e.EventDate, "error", err)
			continue
		}
		events = append(events, model.SensorEvent{
			EventTypeID: e.EventTypeID,
			Deleted:     e.Deleted,
			EventDate:   ts,
			Value:       e.Value,
		})
	}

	return events, nil
}

// mapUserState converts a wire patient entry to the domain UserState.
func mapUserState(e patientEntry) model.UserState {
	var current *int
	if e.CurrentGlucose != nil {
		v := int(*e.CurrentGlucose + 0.5)
		current = &v
	}

	return model.UserState{
		UserID:               string(e.UserID),
		CurrentGlucose:       current,
		Trend:                model.TrendFromCode(e.GlucoseTrend),
		TransmitterConnected: e.IsTransmitterConnected,
	}
}

// parseEventDate accepts RFC3339 timestamps and the vendor's occasional
// zone-less variant, which is documented as UTC.
func parseEventDate(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

// flexID decodes a JSON string or number into a string.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// bodySnippet reads a short prefix of an error response body for diagnostics,
// falling back to the status line when the body is empty or unreadable.
func bodySnippet(r io.Reader, fallback string) string {
	b, err := io.ReadAll(io.LimitReader(r, 256))
	if err != nil || len(strings.TrimSpace(string(b))) == 0 {
		return fallback
	}
	return strings.TrimSpace(string(b))
}
