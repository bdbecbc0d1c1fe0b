package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"covidboard/internal/config"
	"covidboard/internal/covid"
	appLog "covidboard/internal/log"
	"covidboard/internal/model"
	"covidboard/internal/news"
	"covidboard/internal/sched"
	"covidboard/internal/store"
)

// retryDelay is how long after a failed upstream call the automatic
// re-attempt runs.
const retryDelay = 30 * time.Second

// retryName labels the automatic retry entries in the pending list.
const retryName = "API Retry"

// refreshTimeout bounds a single background refresh dispatched by the
// scheduler.
const refreshTimeout = 60 * time.Second

// Dashboard owns all dashboard state: the current statistics snapshot,
// the news feed and the update scheduler. It is created once in main
// and passed by reference to the HTTP handlers; nothing here is global.
type Dashboard struct {
	cfg   *config.Config
	covid *covid.Client
	feed  *news.Feed
	sch   *sched.Scheduler
	store store.Store

	mu       sync.RWMutex
	snapshot model.Snapshot
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithSchedulerOptions forwards options (such as a test clock) to the
// internal scheduler.
func WithSchedulerOptions(opts ...sched.Option) Option {
	return func(d *Dashboard) {
		d.sch = sched.New(d.runAsync, opts...)
	}
}

// New wires a Dashboard from its collaborators. st may be store.Noop.
func New(cfg *config.Config, covidClient *covid.Client, feed *news.Feed, st store.Store, opts ...Option) *Dashboard {
	d := &Dashboard{
		cfg:   cfg,
		covid: covidClient,
		feed:  feed,
		store: st,
	}
	d.sch = sched.New(d.runAsync)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init loads persisted state and performs the initial data fetch so the
// first page request does not wait on upstream APIs. Fetch failures are
// logged and retried; they never abort startup.
func (d *Dashboard) Init(ctx context.Context) {
	d.restorePersisted()

	appLog.Info("loading data from APIs before serving")
	if err := d.RefreshCovid(ctx); err != nil {
		appLog.Error("initial covid data load failed", err)
	}
	if err := d.RefreshNews(ctx); err != nil {
		appLog.Error("initial news load failed", err)
	}
}

// InitFromCSV seeds the statistics from a downloaded CSV snapshot
// instead of the live API, for offline use. News still loads normally.
func (d *Dashboard) InitFromCSV(ctx context.Context, path string) error {
	d.restorePersisted()

	rows, err := covid.ParseCSVFile(path)
	if err != nil {
		return fmt.Errorf("seed from csv: %w", err)
	}
	sevenDay, hospital, deaths := covid.ComputeStats(rows)
	area := covid.AreaName(rows)

	d.mu.Lock()
	d.snapshot = model.Snapshot{
		Location:         area,
		NationLocation:   area,
		LocalSevenDay:    sevenDay,
		NationalSevenDay: sevenDay,
		HospitalCases:    hospital,
		TotalDeaths:      deaths,
		UpdatedAt:        time.Now(),
	}
	d.mu.Unlock()

	appLog.Info("statistics seeded from CSV", "path", path, "rows", len(rows))

	if err := d.RefreshNews(ctx); err != nil {
		appLog.Error("initial news load failed", err)
	}
	return nil
}

func (d *Dashboard) restorePersisted() {
	titles, err := d.store.Dismissals()
	if err != nil {
		appLog.Error("loading dismissals failed", err)
	} else if len(titles) > 0 {
		d.feed.SetDismissed(titles)
		appLog.Info("restored dismissed articles", "count", len(titles))
	}

	if cached, err := d.store.Articles(0); err != nil {
		appLog.Error("loading article cache failed", err)
	} else if len(cached) > 0 {
		d.feed.SetArticles(cached)
		appLog.Info("restored cached articles", "count", len(cached))
	}

	updates, err := d.store.Updates()
	if err != nil {
		appLog.Error("loading scheduled updates failed", err)
		return
	}
	for _, u := range updates {
		if err := d.sch.Restore(u); err != nil {
			appLog.Warn("could not restore scheduled update", "name", u.Name, "err", err)
		}
	}
}

// RefreshCovid re-fetches the local and national statistics. On failure
// the previous snapshot is kept and a one-shot retry is scheduled.
func (d *Dashboard) RefreshCovid(ctx context.Context) error {
	local, err := d.covid.Fetch(ctx, d.cfg.Covid.AreaName, d.cfg.Covid.AreaType)
	if err != nil {
		d.scheduleRetry(model.Targets{CovidData: true})
		return fmt.Errorf("local covid data: %w", err)
	}
	national, err := d.covid.Fetch(ctx, "", "overview")
	if err != nil {
		d.scheduleRetry(model.Targets{CovidData: true})
		return fmt.Errorf("national covid data: %w", err)
	}

	localSevenDay, _, _ := covid.ComputeStats(local)
	nationalSevenDay, hospital, deaths := covid.ComputeStats(national)

	d.mu.Lock()
	d.snapshot = model.Snapshot{
		Location:         covid.AreaName(local),
		NationLocation:   covid.AreaName(national),
		LocalSevenDay:    localSevenDay,
		NationalSevenDay: nationalSevenDay,
		HospitalCases:    hospital,
		TotalDeaths:      deaths,
		UpdatedAt:        time.Now(),
	}
	d.mu.Unlock()

	appLog.Info("covid data refreshed",
		"location", covid.AreaName(local),
		"local_seven_day", localSevenDay.Display(),
		"hospital_cases", hospital.Display(),
		"total_deaths", deaths.Display(),
	)
	return nil
}

// RefreshNews re-fetches the news feed. A total failure keeps the
// previous articles and schedules a retry; partial source failures are
// only logged.
func (d *Dashboard) RefreshNews(ctx context.Context) error {
	err := d.feed.Refresh(ctx)
	if err != nil && len(d.feed.Articles()) == 0 {
		d.scheduleRetry(model.Targets{News: true})
		return fmt.Errorf("news refresh: %w", err)
	}
	if err != nil {
		appLog.Warn("some news sources failed", "err", err)
	}
	if saveErr := d.store.SaveArticles(d.feed.Articles()); saveErr != nil {
		appLog.Error("caching articles failed", saveErr)
	}
	return nil
}

func (d *Dashboard) scheduleRetry(targets model.Targets) {
	if _, err := d.sch.ScheduleAfter(retryDelay, retryName, targets); err != nil {
		// A retry is already queued; the duplicate rule collapses bursts.
		appLog.Debug("retry already scheduled", "err", err)
		return
	}
	appLog.Warn("API call failed, retrying", "in", retryDelay.String())
}

// runAsync is the scheduler fire callback. The refresh happens on its
// own goroutine so a slow upstream cannot stall the tick, and each
// update's entry has already been settled by the scheduler before this
// runs, so nothing races on it.
func (d *Dashboard) runAsync(u model.Update) {
	if !u.Repeating {
		if err := d.store.DeleteUpdate(u.Name, u.At.String()); err != nil {
			appLog.Error("removing fired update from store failed", err, "name", u.Name)
		}
	}
	go d.run(u)
}

func (d *Dashboard) run(u model.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if u.Targets.CovidData {
		if err := d.RefreshCovid(ctx); err != nil {
			appLog.Error("scheduled covid refresh failed", err, "name", u.Name)
		}
	}
	if u.Targets.News {
		if err := d.RefreshNews(ctx); err != nil {
			appLog.Error("scheduled news refresh failed", err, "name", u.Name)
		}
	}
}

// Tick advances the scheduler; main calls this once per minute.
func (d *Dashboard) Tick(now time.Time) {
	d.sch.Tick(now)
}

// ScheduleUpdate inserts a user-submitted update and persists it.
// sched.ErrDuplicate comes back untouched so the caller can apply the
// silent-drop rule.
func (d *Dashboard) ScheduleUpdate(name string, at model.Clock, targets model.Targets, repeating bool) error {
	u, err := d.sch.Schedule(name, at, targets, repeating)
	if err != nil {
		return err
	}
	if err := d.store.SaveUpdate(u); err != nil {
		appLog.Error("persisting scheduled update failed", err, "name", name)
	}
	return nil
}

// CancelUpdate removes the pending update with this exact name and
// time. Unknown entries are a no-op.
func (d *Dashboard) CancelUpdate(name string, at model.Clock) bool {
	if !d.sch.Cancel(name, at) {
		return false
	}
	if err := d.store.DeleteUpdate(name, at.String()); err != nil {
		appLog.Error("removing cancelled update from store failed", err, "name", name)
	}
	return true
}

// DismissArticle hides the article with this title for good.
func (d *Dashboard) DismissArticle(title string) {
	d.feed.Dismiss(title)
	if err := d.store.AddDismissal(title); err != nil {
		appLog.Error("persisting dismissal failed", err, "title", title)
	}
}

// Snapshot returns the current statistics.
func (d *Dashboard) Snapshot() model.Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// PendingUpdates lists scheduled updates, soonest first.
func (d *Dashboard) PendingUpdates() []model.Update {
	return d.sch.Pending()
}

// TopNews returns the articles shown on the dashboard.
func (d *Dashboard) TopNews() []model.Article {
	return d.feed.Top(d.cfg.News.PageSize)
}
