// Package viewmodel holds the presentation structs passed to templ views.
package viewmodel

// Status is the dashboard status panel.
type Status struct {
	HasValue             bool
	Value                int
	Zone                 string // css class: low, good, high
	ZoneLabel            string
	TrendArrow           string
	TransmitterConnected bool
	LastUpdated          string
	ErrorMessage         string
}

// Dashboard is the main page.
type Dashboard struct {
	Status    Status
	CSRFToken string
}

// Login is the login page, carrying entered values back on a failed attempt.
type Login struct {
	Username     string
	Password     string
	Remember     bool
	ErrorMessage string
	CSRFToken    string
}
