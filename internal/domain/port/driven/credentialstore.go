package driven

import (
	"context"
	"errors"

	"github.com/kmathis/glucopanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// GLUCOPANEL_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set GLUCOPANEL_SECRET_KEY")

// CredentialStore defines the driven port for persisted login credentials.
// Credentials are only ever saved when the user opts in via the remember
// flag, and are always cleared together, never partially. Implementations
// encrypt values at rest.
//
// Persistence failures are deliberate log-and-continue territory: callers
// must degrade to no-ops rather than surface storage errors to the user.
type CredentialStore interface {
	// Save persists the username/password pair and sets the remember flag.
	// Returns ErrEncryptionKeyNotSet if the store was constructed without
	// an encryption key.
	Save(ctx context.Context, username, password string) error

	// Load returns the persisted credentials, or nil when nothing was
	// saved, the remember flag is unset, or either value is missing.
	Load(ctx context.Context) (*model.StoredCredentials, error)

	// Clear removes all persisted credential state unconditionally.
	Clear(ctx context.Context) error
}
