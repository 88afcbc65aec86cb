package model

import "time"

// Token is the vendor's bearer token response.
type Token struct {
	AccessToken string
	ExpiresIn   int // lifetime in seconds as reported by the server
}

// Credentials is a username/password pair held in memory for token refresh.
type Credentials struct {
	Username string
	Password string
}

// StoredCredentials is the persisted form of Credentials, only ever saved
// when the user opted in via the remember flag.
type StoredCredentials struct {
	Username string
	Password string
	Remember bool
}

// Session is the authenticated session state owned by the session service.
// The token is valid only while now is before Expiry; Expiry carries a safety
// margin subtracted from the server-reported lifetime.
type Session struct {
	Token    string
	Expiry   time.Time
	UserID   string
	Creds    *Credentials
	Remember bool
}

// Valid reports whether the session holds an unexpired token at the given
// instant.
func (s Session) Valid(now time.Time) bool {
	return s.Token != "" && now.Before(s.Expiry)
}

// Clear resets all session state. Persisted credentials are unaffected.
func (s *Session) Clear() {
	*s = Session{}
}
