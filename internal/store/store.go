// Package store persists pageviews and events and answers the windowed
// aggregate queries behind the dashboard.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/database"
	"github.com/sdko-org/beacon-analytics/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dimension is a categorical pageview column that can be grouped on.
type Dimension string

const (
	DimensionBrowser Dimension = "browser"
	DimensionOS      Dimension = "os"
	DimensionDevice  Dimension = "device"
)

// DailyPageviews is one row of the per-day traffic series.
type DailyPageviews struct {
	Date      string `gorm:"column:day" json:"date"`
	Pageviews int64  `gorm:"column:pv" json:"pv"`
	Visitors  int64  `gorm:"column:uv" json:"uv"`
}

type NamedCount struct {
	Name  string `gorm:"column:name" json:"name"`
	Count int64  `gorm:"column:cnt" json:"count"`
}

type ReferrerCount struct {
	Referrer string `gorm:"column:referrer" json:"referrer"`
	Count    int64  `gorm:"column:cnt" json:"count"`
}

type Option func(*Store)

// WithClock replaces the clock used to stamp new records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the system of record. Inserts are serialized so that timestamps
// never decrease in id order; reads go to a separate pool and do not take
// the write lock.
type Store struct {
	writer *gorm.DB
	reader *gorm.DB
	log    *logrus.Entry

	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func New(logger *logrus.Logger, h *database.Handles, opts ...Option) *Store {
	s := &Store{
		writer: h.Writer,
		reader: h.Reader,
		log:    logger.WithField("component", "store"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stamp must be called with s.mu held.
func (s *Store) stamp() time.Time {
	ts := s.now().UTC()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	return ts
}

func (s *Store) InsertPageview(ctx context.Context, pv *models.Pageview) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pv.ID = 0
	pv.Timestamp = s.stamp()
	if err := s.writer.WithContext(ctx).Create(pv).Error; err != nil {
		return fmt.Errorf("insert pageview: %w", err)
	}
	return nil
}

func (s *Store) InsertEvent(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.ID = 0
	ev.Timestamp = s.stamp()
	if err := s.writer.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Ping checks that the read pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.reader.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) pageviews(ctx context.Context, since time.Time) *gorm.DB {
	return s.reader.WithContext(ctx).Model(&models.Pageview{}).Where("ts >= ?", since.UTC())
}

func (s *Store) events(ctx context.Context, since time.Time) *gorm.DB {
	return s.reader.WithContext(ctx).Model(&models.Event{}).Where("ts >= ?", since.UTC())
}

func (s *Store) CountPageviews(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.pageviews(ctx, since).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count pageviews: %w", err)
	}
	return n, nil
}

func (s *Store) CountVisitors(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.pageviews(ctx, since).Distinct("visitor_hash").Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count visitors: %w", err)
	}
	return n, nil
}

func (s *Store) CountEvents(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	if err := s.events(ctx, since).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func (s *Store) CountEventsNamed(ctx context.Context, name string, since time.Time) (int64, error) {
	var n int64
	if err := s.events(ctx, since).Where("name = ?", name).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s events: %w", name, err)
	}
	return n, nil
}

// PageviewsByDay buckets pageviews by UTC calendar date, oldest first.
func (s *Store) PageviewsByDay(ctx context.Context, since time.Time) ([]DailyPageviews, error) {
	rows := []DailyPageviews{}
	err := s.pageviews(ctx, since).
		Select(s.dayExpr() + " AS day, COUNT(*) AS pv, COUNT(DISTINCT visitor_hash) AS uv").
		Group("day").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pageviews by day: %w", err)
	}
	return rows, nil
}

// EventCounts counts events per name, most frequent first.
func (s *Store) EventCounts(ctx context.Context, since time.Time) ([]NamedCount, error) {
	rows := []NamedCount{}
	err := s.events(ctx, since).
		Select("name, COUNT(*) AS cnt").
		Group("name").
		Order("cnt DESC, name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	return rows, nil
}

// GroupCounts counts pageviews per value of dim, most frequent first.
func (s *Store) GroupCounts(ctx context.Context, dim Dimension, since time.Time) ([]NamedCount, error) {
	switch dim {
	case DimensionBrowser, DimensionOS, DimensionDevice:
	default:
		return nil, fmt.Errorf("unknown dimension %q", dim)
	}

	rows := []NamedCount{}
	col := string(dim)
	err := s.pageviews(ctx, since).
		Select(col + " AS name, COUNT(*) AS cnt").
		Group(col).
		Order("cnt DESC, name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%s counts: %w", dim, err)
	}
	return rows, nil
}

// DirectReferrer labels pageviews that arrived without a referrer.
const DirectReferrer = "(direct)"

// referrerLabel folds the empty referrer into DirectReferrer before grouping,
// so a literal "(direct)" referrer shares its row.
const referrerLabel = "CASE WHEN referrer = '' THEN '" + DirectReferrer + "' ELSE referrer END"

// TopReferrers returns referrer labels ranked by pageview count, ties
// ordered by label.
func (s *Store) TopReferrers(ctx context.Context, since time.Time, limit int) ([]ReferrerCount, error) {
	rows := []ReferrerCount{}
	err := s.pageviews(ctx, since).
		Select(referrerLabel + " AS referrer, COUNT(*) AS cnt").
		Group(referrerLabel).
		Order("cnt DESC, referrer ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}
	return rows, nil
}

// SectionVisitors counts distinct visitors per "section" value in the JSON
// payload of events called name. Payloads that do not decode, or whose
// section is not a string, are skipped.
func (s *Store) SectionVisitors(ctx context.Context, name string, since time.Time) (map[string]int64, error) {
	rows, err := s.events(ctx, since).
		Select("visitor_hash, data").
		Where("name = ?", name).
		Rows()
	if err != nil {
		return nil, fmt.Errorf("section visitors: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]map[string]struct{})
	skipped := 0
	for rows.Next() {
		var visitor, data string
		if err := rows.Scan(&visitor, &data); err != nil {
			return nil, fmt.Errorf("section visitors scan: %w", err)
		}
		var payload struct {
			Section string `json:"section"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil || payload.Section == "" {
			skipped++
			continue
		}
		if seen[payload.Section] == nil {
			seen[payload.Section] = make(map[string]struct{})
		}
		seen[payload.Section][visitor] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("section visitors: %w", err)
	}
	if skipped > 0 {
		s.log.WithFields(logrus.Fields{
			"event":   name,
			"skipped": skipped,
		}).Debug("Skipped events without a readable section")
	}

	counts := make(map[string]int64, len(seen))
	for section, visitors := range seen {
		counts[section] = int64(len(visitors))
	}
	return counts, nil
}

// PageviewsBetween returns pageviews with from <= ts < to in insertion order.
func (s *Store) PageviewsBetween(ctx context.Context, from, to time.Time) ([]models.Pageview, error) {
	var out []models.Pageview
	err := s.reader.WithContext(ctx).
		Where("ts >= ? AND ts < ?", from.UTC(), to.UTC()).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("pageviews between: %w", err)
	}
	return out, nil
}

// EventsBetween returns events with from <= ts < to in insertion order.
func (s *Store) EventsBetween(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	var out []models.Event
	err := s.reader.WithContext(ctx).
		Where("ts >= ? AND ts < ?", from.UTC(), to.UTC()).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("events between: %w", err)
	}
	return out, nil
}

func (s *Store) dayExpr() string {
	if s.reader.Dialector.Name() == "postgres" {
		return "to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "strftime('%Y-%m-%d', ts)"
}
