package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"

	"covidboard/internal/config"
	"covidboard/internal/dashboard"
	appLog "covidboard/internal/log"
	"covidboard/internal/model"
	"covidboard/internal/sched"
)

// Server serves the dashboard page and its JSON/ICS APIs. All state
// lives in the Dashboard passed in; handlers never touch globals.
type Server struct {
	cfg  *config.Config
	dash *dashboard.Dashboard
	mux  *http.ServeMux
	tmpl *template.Template
}

//go:embed templates/*.html
var embeddedTemplates embed.FS

// NewServer constructs a Server around an already initialized Dashboard.
func NewServer(cfg *config.Config, dash *dashboard.Dashboard) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedTemplates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:  cfg,
		dash: dash,
		mux:  http.NewServeMux(),
		tmpl: tmpl,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password is treated as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// /health stays reachable without credentials.
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="covidboard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleHome)
	s.mux.HandleFunc("/index", s.handleHome)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/updates", s.handleUpdates)
	s.mux.HandleFunc("/api/news", s.handleNews)
	s.mux.HandleFunc("/api/stats", s.handleStats)
	s.mux.HandleFunc("/updates.ics", s.handleICS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// pageData is what the index template renders.
type pageData struct {
	Title            string
	Location         string
	NationLocation   string
	LocalSevenDay    string
	NationalSevenDay string
	HospitalCases    string
	TotalDeaths      string
	News             []newsToast
	Updates          []updateToast
}

type newsToast struct {
	Title   string
	Content string
	URL     string
}

type updateToast struct {
	Title   string
	Content string
	Name    string
	Time    string
}

// handleHome serves the dashboard page. The form and the dismiss/cancel
// links all arrive as query parameters on this route:
//
//	two=<name> update=<HH:MM> [repeat=on] [covid-data=on] [news=on]  schedule
//	update_item=<name> update_time=<HH:MM>                           cancel
//	notif=<title>                                                    dismiss
//
// Actions are applied before rendering so the response shows their
// effect. Duplicate schedule submissions are dropped with no feedback
// on the page.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index" {
		http.NotFound(w, r)
		return
	}

	s.applyActions(r)

	snap := s.dash.Snapshot()
	data := pageData{
		Title:            "Covid Dashboard",
		Location:         orNA(snap.Location),
		NationLocation:   orNA(snap.NationLocation),
		LocalSevenDay:    snap.LocalSevenDay.Display() + " cases",
		NationalSevenDay: snap.NationalSevenDay.Display() + " cases",
		HospitalCases:    snap.HospitalCases.Display() + " hospital cases",
		TotalDeaths:      snap.TotalDeaths.Display() + " total deaths",
	}

	for _, a := range s.dash.TopNews() {
		data.News = append(data.News, newsToast{
			Title:   a.Title,
			Content: a.Content,
			URL:     a.URL,
		})
	}

	for _, u := range s.dash.PendingUpdates() {
		data.Updates = append(data.Updates, updateToast{
			Title:   u.Title(),
			Content: formatToast(u),
			Name:    u.Name,
			Time:    u.At.String(),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		appLog.Error("rendering dashboard failed", err)
	}
}

// applyActions processes the schedule/cancel/dismiss parameters of a
// page request.
func (s *Server) applyActions(r *http.Request) {
	q := r.URL.Query()

	wantCovid := q.Get("covid-data") != ""
	wantNews := q.Get("news") != ""
	if wantCovid || wantNews {
		name := q.Get("two")
		at, err := model.ParseClock(q.Get("update"))
		if err != nil {
			appLog.Warn("cannot parse update time, not scheduling", "value", q.Get("update"), "err", err)
		} else {
			targets := model.Targets{CovidData: wantCovid, News: wantNews}
			repeating := q.Get("repeat") != ""
			err := s.dash.ScheduleUpdate(name, at, targets, repeating)
			if errors.Is(err, sched.ErrDuplicate) {
				// Dropped without user feedback, as it has always been.
				appLog.Warn("duplicate scheduled update dropped", "name", name, "time", at.String())
			} else if err != nil {
				appLog.Error("scheduling update failed", err, "name", name)
			}
		}
	}

	if name := q.Get("update_item"); name != "" {
		if at, err := model.ParseClock(q.Get("update_time")); err == nil {
			s.dash.CancelUpdate(name, at)
		} else {
			appLog.Warn("cannot parse cancel time", "value", q.Get("update_time"))
		}
	}

	if title := q.Get("notif"); title != "" {
		s.dash.DismissArticle(title)
	}
}

// formatToast renders the update description shown under its title,
// e.g. "Updating COVID data and news at 07:30 every day".
func formatToast(u model.Update) string {
	out := "Updating " + u.Targets.Describe() + " at " + u.At.String()
	if u.Repeating {
		out += " every day"
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// updateDTO is the JSON view of a pending update.
type updateDTO struct {
	Name      string    `json:"name"`
	Time      string    `json:"time"`
	Covid     bool      `json:"covid"`
	News      bool      `json:"news"`
	Repeating bool      `json:"repeating"`
	NextRun   time.Time `json:"next_run"`
}

func (s *Server) handleUpdates(w http.ResponseWriter, _ *http.Request) {
	pending := s.dash.PendingUpdates()
	dtos := make([]updateDTO, 0, len(pending))
	for _, u := range pending {
		dtos = append(dtos, updateDTO{
			Name:      u.Name,
			Time:      u.At.String(),
			Covid:     u.Targets.CovidData,
			News:      u.Targets.News,
			Repeating: u.Repeating,
			NextRun:   u.NextRun,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": dtos})
}

// articleDTO is the JSON view of a news article.
type articleDTO struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at"`
}

func (s *Server) handleNews(w http.ResponseWriter, _ *http.Request) {
	articles := s.dash.TopNews()
	dtos := make([]articleDTO, 0, len(articles))
	for _, a := range articles {
		dtos = append(dtos, articleDTO{
			Source:      a.Source,
			Title:       a.Title,
			URL:         a.URL,
			Content:     a.Content,
			PublishedAt: a.PublishedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"articles": dtos})
}

// statsResponse is the JSON view of the current statistics snapshot.
type statsResponse struct {
	Location         string    `json:"location"`
	NationLocation   string    `json:"nation_location"`
	LocalSevenDay    string    `json:"local_seven_day_infections"`
	NationalSevenDay string    `json:"national_seven_day_infections"`
	HospitalCases    string    `json:"hospital_cases"`
	TotalDeaths      string    `json:"total_deaths"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.dash.Snapshot()
	writeJSON(w, http.StatusOK, statsResponse{
		Location:         orNA(snap.Location),
		NationLocation:   orNA(snap.NationLocation),
		LocalSevenDay:    snap.LocalSevenDay.Display(),
		NationalSevenDay: snap.NationalSevenDay.Display(),
		HospitalCases:    snap.HospitalCases.Display(),
		TotalDeaths:      snap.TotalDeaths.Display(),
		UpdatedAt:        snap.UpdatedAt,
	})
}

// handleICS exports pending updates as an iCalendar feed, so the
// schedule can be subscribed to from a calendar app. Repeating entries
// carry a daily recurrence rule.
func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//covidboard//dashboard//EN")

	now := time.Now()
	for _, u := range s.dash.PendingUpdates() {
		ev := cal.AddEvent(u.ID + "@covidboard")
		ev.SetDtStampTime(now)
		ev.SetStartAt(u.NextRun)
		ev.SetEndAt(u.NextRun.Add(time.Minute))
		ev.SetSummary(u.Title())
		ev.SetDescription("Updating " + u.Targets.Describe())
		if u.Repeating {
			ev.AddRrule("FREQ=DAILY")
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = io.WriteString(w, cal.Serialize())
}

// StartServer runs the HTTP server until ctx is cancelled, then shuts
// it down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, dash *dashboard.Dashboard) error {
	s, err := NewServer(cfg, dash)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
