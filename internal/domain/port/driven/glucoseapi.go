package driven

import (
	"context"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
)

// GlucoseAPI defines the driven port for the vendor's glucose cloud API.
// Implementations are stateless; session and token lifecycle are owned by the
// application layer.
type GlucoseAPI interface {
	// Login exchanges a username/password for a bearer token via the
	// password grant. Returns *AuthError on a non-2xx response or a
	// transport failure.
	Login(ctx context.Context, username, password string) (model.Token, error)

	// FetchPatientList returns the states of all followed patients. The
	// first element is the primary followed patient. Returns *FetchError
	// on a non-2xx response.
	FetchPatientList(ctx context.Context, token string) ([]model.UserState, error)

	// FetchSensorEvents returns raw sensor events for the user between
	// start and end. Callers filter for glucose events.
	FetchSensorEvents(ctx context.Context, token, userID string, start, end time.Time) ([]model.SensorEvent, error)
}
