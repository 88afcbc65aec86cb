// Package web implements the HTML GUI driving adapter using templ components.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kmathis/glucopanel/internal/adapter/driving/web/viewmodel"
	"github.com/kmathis/glucopanel/internal/adapter/driving/web/views"
	"github.com/kmathis/glucopanel/internal/application"
	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Handler serves the dashboard and login pages over the poll controller's
// snapshot state.
type Handler struct {
	poll   *application.PollService
	creds  driven.CredentialStore
	hub    *Hub
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(poll *application.PollService, creds driven.CredentialStore, hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{poll: poll, creds: creds, hub: hub, logger: logger}
}

// Dashboard renders the main page, or redirects to the login form when no
// session is active.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if h.poll.State() == application.StateUnauthenticated {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	vm := viewmodel.Dashboard{
		Status:    h.statusView(),
		CSRFToken: csrfToken(w, r),
	}

	if err := views.Dashboard(vm).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render dashboard", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// LoginForm renders the login page, pre-populated from saved credentials.
func (h *Handler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.poll.State() != application.StateUnauthenticated {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	vm := viewmodel.Login{CSRFToken: csrfToken(w, r)}

	if stored, err := h.creds.Load(r.Context()); err != nil {
		h.logger.Error("failed to load saved credentials", "error", err)
	} else if stored != nil {
		vm.Username = stored.Username
		vm.Password = stored.Password
		vm.Remember = true
	}

	h.renderLogin(w, r, vm)
}

// LoginSubmit validates and performs the login, re-rendering the form with
// the entered values preserved on failure.
func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	vm := viewmodel.Login{
		Username:  r.PostFormValue("username"),
		Password:  r.PostFormValue("password"),
		Remember:  r.PostFormValue("remember") == "on",
		CSRFToken: csrfToken(w, r),
	}

	if vm.Username == "" || vm.Password == "" {
		vm.ErrorMessage = "Username and password are required."
		h.renderLogin(w, r, vm)
		return
	}

	if err := h.poll.Login(r.Context(), vm.Username, vm.Password, vm.Remember); err != nil {
		vm.ErrorMessage = loginErrorMessage(err)
		h.renderLogin(w, r, vm)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// LogoutSubmit ends the session and returns to the login page. The optional
// forget checkbox also clears saved credentials.
func (h *Handler) LogoutSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !validateCSRF(r) {
		http.Error(w, "invalid CSRF token", http.StatusForbidden)
		return
	}

	forget := r.PostFormValue("forget") == "1"
	if err := h.poll.Logout(r.Context(), forget); err != nil {
		h.logger.Error("logout failed", "error", err)
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// ChartFragment renders the chart document at the requested width. The
// dashboard embeds it in an iframe and reloads it on resize.
func (h *Handler) ChartFragment(w http.ResponseWriter, r *http.Request) {
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))

	chart := BuildGlucoseChart(h.poll.Readings(), width)
	if err := chart.Render(w); err != nil {
		h.logger.Error("failed to render chart", "error", err)
	}
}

// Live upgrades to a websocket for pushed reading updates.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}

func (h *Handler) renderLogin(w http.ResponseWriter, r *http.Request, vm viewmodel.Login) {
	if err := views.Login(vm).Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render login form", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// statusView builds the status panel from the latest poll snapshot.
func (h *Handler) statusView() viewmodel.Status {
	vm := viewmodel.Status{TransmitterConnected: true}

	if err := h.poll.LastError(); err != nil {
		vm.ErrorMessage = err.Error()
	}

	if state := h.poll.UserState(); state != nil {
		vm.TransmitterConnected = state.TransmitterConnected
		if state.CurrentGlucose != nil {
			zone := model.Categorize(*state.CurrentGlucose)
			vm.HasValue = true
			vm.Value = *state.CurrentGlucose
			vm.Zone = string(zone)
			vm.ZoneLabel = zone.Label()
			vm.TrendArrow = state.Trend.Collapse().Arrow()
		}
	}

	if latest := h.poll.Latest(); latest != nil {
		vm.LastUpdated = latest.Timestamp.Local().Format(time.Kitchen)
	}

	return vm
}

// loginErrorMessage maps a login failure to the banner text.
func loginErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return "Login failed: " + err.Error()
}
