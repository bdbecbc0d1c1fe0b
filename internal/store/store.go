package store

import (
	"fmt"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"covidboard/internal/model"
)

// Store persists dashboard state between restarts: pending scheduled
// updates, dismissed article titles and the last fetched articles. The
// dashboard works against this interface so running without a database
// (pure in-session state, the default) uses Noop.
type Store interface {
	SaveUpdate(u model.Update) error
	DeleteUpdate(name, at string) error
	Updates() ([]model.Update, error)

	AddDismissal(title string) error
	Dismissals() ([]string, error)

	SaveArticles(articles []model.Article) error
	Articles(limit int) ([]model.Article, error)

	Close() error
}

// UpdateRow is a pending scheduled update. (Name, Time) carries the
// same uniqueness the scheduler enforces in memory.
type UpdateRow struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex:idx_updates_name_time"`
	Time      string `gorm:"uniqueIndex:idx_updates_name_time"` // "HH:MM"
	Covid     bool
	News      bool
	Repeating bool
	CreatedAt time.Time
}

func (UpdateRow) TableName() string { return "updates" }

// DismissalRow is a dismissed article title.
type DismissalRow struct {
	Title     string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (DismissalRow) TableName() string { return "dismissals" }

// ArticleRow caches a fetched article so the dashboard has news to show
// while upstream sources are down.
type ArticleRow struct {
	ID          string `gorm:"primaryKey"`
	Source      string
	Title       string
	URL         string
	Content     string
	PublishedAt time.Time `gorm:"index"`
	FetchedAt   time.Time
}

func (ArticleRow) TableName() string { return "articles" }

// DB is the SQLite-backed Store.
type DB struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database and runs
// migrations.
func Open(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: empty database path")
	}

	if err := ensureDirForSQLite(dsn); err != nil {
		return nil, err
	}

	dbLogger := logger.New(
		stdlog.New(os.Stderr, "", stdlog.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: dbLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.AutoMigrate(&UpdateRow{}, &DismissalRow{}, &ArticleRow{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	return &DB{db: db}, nil
}

// ensureDirForSQLite creates the parent dir for the SQLite file if needed.
func ensureDirForSQLite(dsn string) error {
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return nil
	}
	clean := strings.TrimPrefix(dsn, "file:")
	clean = strings.Split(clean, "?")[0]
	dir := filepath.Dir(clean)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create db dir %q: %w", dir, err)
	}
	return nil
}

func (s *DB) SaveUpdate(u model.Update) error {
	row := UpdateRow{
		ID:        u.ID,
		Name:      u.Name,
		Time:      u.At.String(),
		Covid:     u.Targets.CovidData,
		News:      u.Targets.News,
		Repeating: u.Repeating,
	}
	return s.db.Save(&row).Error
}

func (s *DB) DeleteUpdate(name, at string) error {
	return s.db.Where("name = ? AND time = ?", name, at).Delete(&UpdateRow{}).Error
}

func (s *DB) Updates() ([]model.Update, error) {
	var rows []UpdateRow
	if err := s.db.Order("created_at").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Update, 0, len(rows))
	for _, r := range rows {
		at, err := model.ParseClock(r.Time)
		if err != nil {
			// A corrupt row must not block boot.
			continue
		}
		out = append(out, model.Update{
			ID:        r.ID,
			Name:      r.Name,
			At:        at,
			Targets:   model.Targets{CovidData: r.Covid, News: r.News},
			Repeating: r.Repeating,
		})
	}
	return out, nil
}

func (s *DB) AddDismissal(title string) error {
	row := DismissalRow{Title: title}
	return s.db.Save(&row).Error
}

func (s *DB) Dismissals() ([]string, error) {
	var rows []DismissalRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Title)
	}
	return out, nil
}

func (s *DB) SaveArticles(articles []model.Article) error {
	if len(articles) == 0 {
		return nil
	}
	now := time.Now()
	rows := make([]ArticleRow, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, ArticleRow{
			ID:          a.ID,
			Source:      a.Source,
			Title:       a.Title,
			URL:         a.URL,
			Content:     a.Content,
			PublishedAt: a.PublishedAt,
			FetchedAt:   now,
		})
	}
	return s.db.Save(&rows).Error
}

func (s *DB) Articles(limit int) ([]model.Article, error) {
	var rows []ArticleRow
	q := s.db.Order("published_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Article{
			ID:          r.ID,
			Source:      r.Source,
			Title:       r.Title,
			URL:         r.URL,
			Content:     r.Content,
			PublishedAt: r.PublishedAt,
		})
	}
	return out, nil
}

func (s *DB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Noop is the Store used when no database is configured. Everything is
// session-only, matching the dashboard's historical behavior.
type Noop struct{}

func (Noop) SaveUpdate(model.Update) error { return nil }
func (Noop) DeleteUpdate(string, string) error { return nil }
func (Noop) Updates() ([]model.Update, error) { return nil, nil }
func (Noop) AddDismissal(string) error { return nil }
func (Noop) Dismissals() ([]string, error) { return nil, nil }
func (Noop) SaveArticles([]model.Article) error { return nil }
func (Noop) Articles(int) ([]model.Article, error) { return nil, nil }
func (Noop) Close() error { return nil }
