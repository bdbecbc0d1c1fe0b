package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"covidboard/internal/config"
	"covidboard/internal/covid"
	"covidboard/internal/dashboard"
	"covidboard/internal/model"
	"covidboard/internal/news"
	"covidboard/internal/store"
)

func newTestServer(t *testing.T) (*Server, *dashboard.Dashboard) {
	t.Helper()

	cfg := config.DefaultConfig()
	feed := news.NewFeed(nil, nil, cfg.News.CovidTerms)
	feed.SetArticles([]model.Article{
		{
			ID:          "a1",
			Source:      "Example",
			Title:       "Covid headline",
			URL:         "https://example.com/1",
			Content:     "Something happened.",
			PublishedAt: time.Now(),
		},
	})

	dash := dashboard.New(cfg, covid.NewClient("http://127.0.0.1:0"), feed, store.Noop{})
	srv, err := NewServer(cfg, dash)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv, dash
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("body = %q, want OK", rec.Body.String())
	}
}

func TestHomeRendersStats(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	// No data has been fetched yet, so every stat is N/A.
	if !strings.Contains(body, "N/A cases") {
		t.Errorf("body missing N/A stats:\n%s", body)
	}
	if !strings.Contains(body, "Covid headline") {
		t.Errorf("body missing seeded article")
	}
}

func TestHomeUnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestScheduleViaQueryParams(t *testing.T) {
	srv, dash := newTestServer(t)

	rec := get(t, srv.Handler(), "/index?two=morning&update=07%3A30&repeat=on&covid-data=on&news=on")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	pending := dash.PendingUpdates()
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	u := pending[0]
	if u.Name != "morning" || u.At.String() != "07:30" || !u.Repeating {
		t.Fatalf("unexpected update: %+v", u)
	}
	if !u.Targets.CovidData || !u.Targets.News {
		t.Fatalf("unexpected targets: %+v", u.Targets)
	}
	if !strings.Contains(rec.Body.String(), "morning - 07:30") {
		t.Errorf("response page does not show the new update")
	}
}

func TestScheduleDuplicateDroppedSilently(t *testing.T) {
	srv, dash := newTestServer(t)
	h := srv.Handler()

	target := "/index?two=dup&update=09%3A00&covid-data=on"
	get(t, h, target)
	rec := get(t, h, target)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := len(dash.PendingUpdates()); got != 1 {
		t.Fatalf("pending = %d, want 1", got)
	}
}

func TestScheduleWithoutTargetsIgnored(t *testing.T) {
	srv, dash := newTestServer(t)
	get(t, srv.Handler(), "/index?two=idle&update=09%3A00")
	if got := len(dash.PendingUpdates()); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestScheduleBadTimeIgnored(t *testing.T) {
	srv, dash := newTestServer(t)
	get(t, srv.Handler(), "/index?two=bad&update=25%3A99&covid-data=on")
	if got := len(dash.PendingUpdates()); got != 0 {
		t.Fatalf("pending = %d, want 0", got)
	}
}

func TestCancelViaQueryParams(t *testing.T) {
	srv, dash := newTestServer(t)
	h := srv.Handler()

	get(t, h, "/index?two=gone&update=10%3A00&news=on")
	if got := len(dash.PendingUpdates()); got != 1 {
		t.Fatalf("pending before cancel = %d, want 1", got)
	}

	get(t, h, "/index?update_item=gone&update_time=10%3A00")
	if got := len(dash.PendingUpdates()); got != 0 {
		t.Fatalf("pending after cancel = %d, want 0", got)
	}
}

func TestDismissViaQueryParams(t *testing.T) {
	srv, dash := newTestServer(t)

	rec := get(t, srv.Handler(), "/index?notif="+url.QueryEscape("Covid headline"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "Covid headline") {
		t.Errorf("dismissed article still on the page")
	}
	if got := len(dash.TopNews()); got != 0 {
		t.Fatalf("top news = %d, want 0", got)
	}
}

func TestUpdatesJSON(t *testing.T) {
	srv, dash := newTestServer(t)
	if err := dash.ScheduleUpdate("api", model.Clock{Hour: 6, Minute: 15}, model.Targets{CovidData: true}, true); err != nil {
		t.Fatalf("ScheduleUpdate: %v", err)
	}

	rec := get(t, srv.Handler(), "/api/updates")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Updates []updateDTO `json:"updates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(resp.Updates))
	}
	u := resp.Updates[0]
	if u.Name != "api" || u.Time != "06:15" || !u.Covid || u.News || !u.Repeating {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestNewsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/news")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Articles []articleDTO `json:"articles"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Articles) != 1 || resp.Articles[0].Title != "Covid headline" {
		t.Fatalf("unexpected articles: %+v", resp.Articles)
	}
}

func TestStatsJSON(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := get(t, srv.Handler(), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.LocalSevenDay != "N/A" || resp.TotalDeaths != "N/A" {
		t.Fatalf("unexpected stats: %+v", resp)
	}
}

func TestICSExport(t *testing.T) {
	srv, dash := newTestServer(t)
	if err := dash.ScheduleUpdate("daily", model.Clock{Hour: 8, Minute: 0}, model.Targets{News: true}, true); err != nil {
		t.Fatalf("ScheduleUpdate: %v", err)
	}
	if err := dash.ScheduleUpdate("once", model.Clock{Hour: 21, Minute: 30}, model.Targets{CovidData: true}, false); err != nil {
		t.Fatalf("ScheduleUpdate: %v", err)
	}

	rec := get(t, srv.Handler(), "/updates.ics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Fatalf("content type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "BEGIN:VCALENDAR") {
		t.Fatalf("not a calendar:\n%s", body)
	}
	if !strings.Contains(body, "daily - 08:00") || !strings.Contains(body, "once - 21:30") {
		t.Errorf("calendar missing events:\n%s", body)
	}
	if got := strings.Count(body, "RRULE:FREQ=DAILY"); got != 1 {
		t.Errorf("RRULE count = %d, want 1", got)
	}
}

func TestBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "secret"}
	h := srv.Handler()

	rec := get(t, h, "/")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without credentials = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad password = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("admin", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status with credentials = %d, want 200", rec.Code)
	}

	// Health stays open for probes.
	if rec := get(t, h, "/health"); rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}
}
