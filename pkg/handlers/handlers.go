package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"github.com/payback159/raidsplit/pkg/app"
	"github.com/payback159/raidsplit/pkg/backend"
	"github.com/payback159/raidsplit/pkg/downloads"
	"github.com/payback159/raidsplit/pkg/export"
	"github.com/payback159/raidsplit/pkg/live"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/security"
	"github.com/payback159/raidsplit/pkg/session"
	"github.com/payback159/raidsplit/pkg/settings"
	"github.com/payback159/raidsplit/pkg/web"
)

// ShellFactory builds the shell of a new browser session
type ShellFactory func(sessionID string) (*app.Shell, error)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	Templates    *template.Template
	SessionStore *session.Store[*app.Shell]
	NewShell     ShellFactory
	Production   bool
}

// PageData is the template data of the console page
type PageData struct {
	Page        app.Page
	Diagnostics *app.Diagnostics
	CSRFField   template.HTML
	CSRFToken   string
}

// NewHandler creates a new handler with dependencies
func NewHandler(templates *template.Template, sessionStore *session.Store[*app.Shell], newShell ShellFactory, production bool) *Handler {
	return &Handler{
		Templates:    templates,
		SessionStore: sessionStore,
		NewShell:     newShell,
		Production:   production,
	}
}

// Routes registers every console endpoint. Generation, export, download,
// details and seeding endpoints go through limiter.
func (h *Handler) Routes(limiter *security.RateLimiter) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logRequests, h.recoverPanics)

	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", web.Static())).Methods(http.MethodGet)

	r.HandleFunc("/", h.HandleHome).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.HandleLive).Methods(http.MethodGet)
	r.HandleFunc("/api/state", h.HandleState).Methods(http.MethodGet)

	r.HandleFunc("/settings", h.HandleSettings).Methods(http.MethodPost)
	r.HandleFunc("/settings/reset", h.HandleSettingsReset).Methods(http.MethodPost)
	r.HandleFunc("/settings/{action:open|close}", h.HandleSettingsModal).Methods(http.MethodPost)

	r.HandleFunc("/groups/clear", h.HandleClearGroups).Methods(http.MethodPost)
	r.HandleFunc("/locks/toggle", h.HandleToggleLock).Methods(http.MethodPost)
	r.HandleFunc("/locks/clear", h.HandleClearLocks).Methods(http.MethodPost)

	r.HandleFunc("/modal/key", h.HandleModalKey).Methods(http.MethodPost)
	r.HandleFunc("/modal/outside", h.HandleModalOutside).Methods(http.MethodPost)

	r.HandleFunc("/sidebar", h.HandleSidebar).Methods(http.MethodGet)
	r.HandleFunc("/sidebar/{player}/toggle", h.HandleTogglePlayer).Methods(http.MethodPost)

	r.HandleFunc("/toasts/{id}/dismiss", h.HandleDismissToast).Methods(http.MethodPost)
	r.HandleFunc("/activity", h.HandleActivity).Methods(http.MethodPost)
	r.HandleFunc("/stats/toggle", h.HandleToggleStats).Methods(http.MethodPost)
	r.HandleFunc("/welcome/dismiss", h.HandleDismissWelcome).Methods(http.MethodPost)

	limited := r.NewRoute().Subrouter()
	if limiter != nil {
		limited.Use(limiter.Middleware)
	}
	limited.HandleFunc("/generate", h.HandleGenerate).Methods(http.MethodPost)
	limited.HandleFunc("/regenerate", h.HandleRegenerate).Methods(http.MethodPost)
	limited.HandleFunc("/groups/{id:[0-9]+}/details", h.HandleDetails).Methods(http.MethodPost)
	limited.HandleFunc("/export/clipboard", h.HandleExport).Methods(http.MethodPost)
	limited.HandleFunc("/download/groups.csv", h.HandleDownloadCSV).Methods(http.MethodGet)
	limited.HandleFunc("/download/groups.xlsx", h.HandleDownloadExcel).Methods(http.MethodGet)
	limited.HandleFunc("/admin/seed/{kind}", h.HandleSeed).Methods(http.MethodPost)

	return r
}

// getCSRFField returns CSRF field for production, empty string for development
func (h *Handler) getCSRFField(r *http.Request) template.HTML {
	if h.Production {
		return csrf.TemplateField(r)
	}
	return template.HTML("")
}

func (h *Handler) getCSRFToken(r *http.Request) string {
	if h.Production {
		return csrf.Token(r)
	}
	return ""
}

// shellFor returns the caller's session shell, creating the session and
// its cookie when the request carries none
func (h *Handler) shellFor(w http.ResponseWriter, r *http.Request) (*app.Shell, error) {
	sessionID := ""
	if cookie, err := r.Cookie(session.CookieName); err == nil && session.ValidSessionID(cookie.Value) {
		sessionID = cookie.Value
	}

	if sessionID == "" {
		id, err := session.GenerateSessionID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		sessionID = id
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.Production,
			SameSite: http.SameSiteStrictMode,
		})
	}

	shell, created, err := h.SessionStore.GetOrCreate(sessionID, h.NewShell)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if created {
		logging.LogInfo("Session started",
			"session_id_length", len(sessionID),
			"ip", security.GetClientIP(r))
	}
	return shell, nil
}

// withShell resolves the session shell and runs fn, answering with a 500
// when no session can be created
func (h *Handler) withShell(fn func(w http.ResponseWriter, r *http.Request, s *app.Shell)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.shellFor(w, r)
		if err != nil {
			logging.LogError("Session management failed", err, "ip", security.GetClientIP(r))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		fn(w, r, s)
	}
}

// wantsJSON reports whether the request came from the console script
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// respond answers script requests with JSON and plain form posts with a
// redirect back to the console
func respond(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if !wantsJSON(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.LogError("Failed to encode JSON response", err)
	}
}

type result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Value   any    `json:"value,omitempty"`
}

// HandleHealth reports liveness
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.SessionStore.GetSessionCount(),
	})
}

// HandleHome renders the console page
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		s.Touch()
		data := PageData{
			Page:      s.Page(),
			CSRFField: h.getCSRFField(r),
			CSRFToken: h.getCSRFToken(r),
		}
		if data.Page.StatsExpanded {
			d := s.Diagnostics(r.Context())
			data.Diagnostics = &d
		}

		w.Header().Set("Cache-Control", "no-store")
		if err := h.Templates.ExecuteTemplate(w, "index.html", data); err != nil {
			logging.LogError("Template execution failed", err, "template", "index.html")
		}
	})(w, r)
}

// HandleState returns the session's view-models as JSON
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		writeJSON(w, http.StatusOK, s.Page())
	})(w, r)
}

// HandleLive upgrades to the session's live channel
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		conn, err := live.Upgrade(w, r)
		if err != nil {
			logging.LogSecurityEvent("websocket_upgrade_rejected", "low",
				"ip", security.GetClientIP(r),
				"origin", r.Header.Get("Origin"),
				"error", err.Error())
			return
		}
		s.Hub.Serve(conn)
	})(w, r)
}

// parseIntField parses an optional form integer into a patch field
func parseIntField(r *http.Request, name string, problems *[]string) *int {
	raw := strings.TrimSpace(r.FormValue(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*problems = append(*problems, fmt.Sprintf("%s must be a whole number", name))
		return nil
	}
	return &v
}

// HandleSettings validates and applies the settings form
func (h *Handler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form", http.StatusBadRequest)
			return
		}

		var problems []string
		patch := settings.Patch{
			NumberOfSplits:  parseIntField(r, "numberOfSplits", &problems),
			HealersPerSplit: parseIntField(r, "healersPerSplit", &problems),
		}
		if len(problems) > 0 {
			logging.LogWarn("Invalid form input detected",
				"form", "settings",
				"problems", problems,
				"ip", security.GetClientIP(r))
			respond(w, r, http.StatusUnprocessableEntity, map[string]any{"ok": false, "problems": problems})
			return
		}

		if !s.SubmitSettings(patch) {
			respond(w, r, http.StatusUnprocessableEntity, map[string]any{
				"ok":       false,
				"problems": s.SettingsModal.Form().Problems,
			})
			return
		}
		respond(w, r, http.StatusOK, result{OK: true, Value: s.Settings.Get()})
	})(w, r)
}

// HandleSettingsReset restores the default settings
func (h *Handler) HandleSettingsReset(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		s.ResetSettings()
		respond(w, r, http.StatusOK, result{OK: true, Value: s.Settings.Get()})
	})(w, r)
}

// HandleSettingsModal opens or closes the settings dialog
func (h *Handler) HandleSettingsModal(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if mux.Vars(r)["action"] == "open" {
			s.OpenSettings()
		} else {
			s.SettingsModal.Close()
		}
		respond(w, r, http.StatusOK, result{OK: true, Value: s.SettingsModal.IsOpen()})
	})(w, r)
}

// HandleGenerate starts a generation in the background
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if !s.StartGeneration() {
			respond(w, r, http.StatusConflict, result{OK: false, Message: "Generation already in progress"})
			return
		}
		respond(w, r, http.StatusAccepted, result{OK: true})
	})(w, r)
}

// HandleRegenerate clears the groups and generates again in the background
func (h *Handler) HandleRegenerate(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if !s.StartRegeneration() {
			respond(w, r, http.StatusConflict, result{OK: false, Message: "Generation already in progress"})
			return
		}
		respond(w, r, http.StatusAccepted, result{OK: true})
	})(w, r)
}

// HandleClearGroups returns to the welcome panel
func (h *Handler) HandleClearGroups(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		s.ClearGroups()
		respond(w, r, http.StatusOK, result{OK: true})
	})(w, r)
}

// HandleToggleLock locks or unlocks one character
func (h *Handler) HandleToggleLock(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		name := r.FormValue("name")
		groupID, err := strconv.Atoi(r.FormValue("groupId"))
		if err != nil || groupID <= 0 {
			respond(w, r, http.StatusBadRequest, result{OK: false, Message: "Invalid group id"})
			return
		}

		locked, err := s.ToggleLock(name, groupID)
		switch {
		case errors.Is(err, app.ErrUnknownGroup), errors.Is(err, app.ErrUnknownCharacter):
			respond(w, r, http.StatusNotFound, result{OK: false})
		case err != nil:
			logging.LogWarn("Invalid form input detected",
				"field", "name",
				"validation_error", err.Error(),
				"ip", security.GetClientIP(r))
			respond(w, r, http.StatusBadRequest, result{OK: false, Message: err.Error()})
		default:
			respond(w, r, http.StatusOK, result{OK: true, Value: locked})
		}
	})(w, r)
}

// HandleClearLocks drops every lock
func (h *Handler) HandleClearLocks(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		n := s.ClearLocks()
		respond(w, r, http.StatusOK, result{OK: true, Value: n})
	})(w, r)
}

// HandleDetails opens the split details dialog of one group
func (h *Handler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		groupID, _ := strconv.Atoi(mux.Vars(r)["id"])

		err := s.OpenDetails(r.Context(), groupID)
		switch {
		case errors.Is(err, app.ErrUnknownGroup):
			respond(w, r, http.StatusNotFound, result{OK: false})
		case err != nil:
			respond(w, r, http.StatusBadGateway, result{OK: false, Message: err.Error()})
		default:
			d, _ := s.Details.Details()
			respond(w, r, http.StatusOK, result{OK: true, Value: d})
		}
	})(w, r)
}

// HandleModalKey forwards a key press to the open dialogs
func (h *Handler) HandleModalKey(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		closed := s.HandleKey(r.FormValue("key"))
		respond(w, r, http.StatusOK, result{OK: true, Value: closed})
	})(w, r)
}

// HandleModalOutside forwards a click outside the named dialog
func (h *Handler) HandleModalOutside(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		closed := s.HandleClickOutside(r.FormValue("modal"))
		respond(w, r, http.StatusOK, result{OK: true, Value: closed})
	})(w, r)
}

// HandleSidebar opens the player sidebar filtered by the q parameter
func (h *Handler) HandleSidebar(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if !s.Sidebar.IsOpen() || !s.Sidebar.Snapshot().Loaded {
			if err := s.OpenSidebar(r.Context()); err != nil {
				respond(w, r, http.StatusBadGateway, result{OK: false, Message: err.Error()})
				return
			}
		}
		s.Sidebar.Filter(r.URL.Query().Get("q"))
		respond(w, r, http.StatusOK, s.Sidebar.Snapshot())
	})(w, r)
}

// HandleTogglePlayer expands or collapses one sidebar entry
func (h *Handler) HandleTogglePlayer(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		playerID := security.SanitizeName(mux.Vars(r)["player"])
		if playerID == "" {
			respond(w, r, http.StatusBadRequest, result{OK: false})
			return
		}
		expanded := s.TogglePlayer(playerID)
		respond(w, r, http.StatusOK, result{OK: true, Value: expanded})
	})(w, r)
}

// HandleExport copies the displayed groups to the browser's clipboard
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		format := export.ParseFormat(r.FormValue("format"))
		if !s.Export(r.Context(), format) {
			respond(w, r, http.StatusUnprocessableEntity, result{OK: false})
			return
		}
		respond(w, r, http.StatusOK, result{OK: true, Value: format})
	})(w, r)
}

// groupsSource looks up the displayed groups of an existing session
func (h *Handler) groupsSource(sessionID string) ([]models.Group, bool) {
	s, ok := h.SessionStore.Get(sessionID)
	if !ok {
		return nil, false
	}
	return s.Generation.State().Groups, true
}

// HandleDownloadCSV serves the displayed groups as CSV
func (h *Handler) HandleDownloadCSV(w http.ResponseWriter, r *http.Request) {
	downloads.HandleGroupsCSV(w, r, h.groupsSource)
}

// HandleDownloadExcel serves the displayed groups as an xlsx workbook
func (h *Handler) HandleDownloadExcel(w http.ResponseWriter, r *http.Request) {
	downloads.HandleGroupsExcel(w, r, h.groupsSource)
}

// HandleDismissToast removes a toast before it expires
func (h *Handler) HandleDismissToast(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		if !s.Toasts.Dismiss(mux.Vars(r)["id"]) {
			respond(w, r, http.StatusNotFound, result{OK: false})
			return
		}
		respond(w, r, http.StatusOK, result{OK: true})
	})(w, r)
}

// HandleActivity records operator activity
func (h *Handler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		s.Touch()
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

// HandleToggleStats expands or collapses the roster stats panel
func (h *Handler) HandleToggleStats(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		respond(w, r, http.StatusOK, result{OK: true, Value: s.ToggleStats()})
	})(w, r)
}

// HandleDismissWelcome hides the welcome panel for good
func (h *Handler) HandleDismissWelcome(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		s.DismissWelcome()
		respond(w, r, http.StatusOK, result{OK: true})
	})(w, r)
}

// HandleSeed triggers one of the backend's roster seeding endpoints
func (h *Handler) HandleSeed(w http.ResponseWriter, r *http.Request) {
	h.withShell(func(w http.ResponseWriter, r *http.Request, s *app.Shell) {
		kind, ok := backend.ParseSeedKind(mux.Vars(r)["kind"])
		if !ok {
			respond(w, r, http.StatusNotFound, result{OK: false, Message: "Unknown seed kind"})
			return
		}
		logging.LogSecurityEvent("roster_seed_requested", "medium",
			"kind", string(kind),
			"ip", security.GetClientIP(r))
		if !s.Seed(r.Context(), kind) {
			respond(w, r, http.StatusBadGateway, result{OK: false})
			return
		}
		respond(w, r, http.StatusOK, result{OK: true})
	})(w, r)
}

// statusRecorder captures the response status for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack hands the connection to the websocket upgrade
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.Method, r.URL.Path, r.UserAgent(), security.GetClientIP(r), rec.status, time.Since(start))
	})
}

// recoverPanics logs a handler panic and shows the session a generic error
// toast
func (h *Handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err := fmt.Errorf("%v", rec)
			logging.LogCritical("Handler panicked", err,
				"method", r.Method,
				"path", r.URL.Path,
				"ip", security.GetClientIP(r))

			if cookie, cerr := r.Cookie(session.CookieName); cerr == nil {
				if s, ok := h.SessionStore.Get(cookie.Value); ok {
					s.ReportUnexpected(r.URL.Path, err)
				}
			}
			respond(w, r, http.StatusInternalServerError, result{OK: false, Message: "Internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}
