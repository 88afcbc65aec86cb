package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ReadingResponse is the JSON representation of a glucose reading.
type ReadingResponse struct {
	Value     int    `json:"value"`
	Trend     string `json:"trend"`
	Zone      string `json:"zone"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the JSON representation of the dashboard status panel.
type StatusResponse struct {
	State                string `json:"state"`
	CurrentGlucose       *int   `json:"current_glucose"`
	Zone                 string `json:"zone,omitempty"`
	ZoneLabel            string `json:"zone_label,omitempty"`
	Trend                string `json:"trend,omitempty"`
	TrendArrow           string `json:"trend_arrow,omitempty"`
	TransmitterConnected bool   `json:"transmitter_connected"`
	LastUpdated          string `json:"last_updated,omitempty"`
	LastError            string `json:"last_error,omitempty"`
}

// LoginRequest is the JSON body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// LogoutRequest is the JSON body for the logout endpoint. Forget also clears
// persisted credentials.
type LogoutRequest struct {
	Forget bool `json:"forget"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toReadingResponse converts a domain Reading to its JSON representation.
func toReadingResponse(r model.Reading) ReadingResponse {
	return ReadingResponse{
		Value:     r.Value,
		Trend:     string(r.Trend),
		Zone:      string(model.Categorize(r.Value)),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
	}
}
