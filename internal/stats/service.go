// Package stats answers the dashboard's time-windowed aggregate queries.
package stats

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/store"
)

const (
	DefaultPeriodDays = 7
	MinPeriodDays     = 1
	MaxPeriodDays     = 365

	EventDownloadClick = "download_click"
	EventGithubClick   = "github_click"
	EventScrollDepth   = "scroll_depth"

	ReferrerLimit  = 20
	DirectReferrer = store.DirectReferrer
)

// FunnelSteps are the landing page sections, in page order, whose
// scroll_depth events make up the conversion funnel.
var FunnelSteps = []string{"proof", "efficiency", "how", "privacy", "features", "faq", "cta"}

var periodPattern = regexp.MustCompile(`^(\d+)d`)

type Reader interface {
	CountPageviews(ctx context.Context, since time.Time) (int64, error)
	CountVisitors(ctx context.Context, since time.Time) (int64, error)
	CountEvents(ctx context.Context, since time.Time) (int64, error)
	CountEventsNamed(ctx context.Context, name string, since time.Time) (int64, error)
	PageviewsByDay(ctx context.Context, since time.Time) ([]store.DailyPageviews, error)
	EventCounts(ctx context.Context, since time.Time) ([]store.NamedCount, error)
	GroupCounts(ctx context.Context, dim store.Dimension, since time.Time) ([]store.NamedCount, error)
	TopReferrers(ctx context.Context, since time.Time, limit int) ([]store.ReferrerCount, error)
	SectionVisitors(ctx context.Context, name string, since time.Time) (map[string]int64, error)
}

type Today struct {
	Pageviews int64 `json:"pv"`
	Visitors  int64 `json:"uv"`
	Downloads int64 `json:"downloads"`
}

type Summary struct {
	Period    string `json:"period"`
	Pageviews int64  `json:"pv"`
	Visitors  int64  `json:"uv"`
	Events    int64  `json:"events"`
	Downloads int64  `json:"downloads"`
	Github    int64  `json:"github"`
	Today     Today  `json:"today"`
}

type FunnelStep struct {
	Step     string `json:"step"`
	Visitors int64  `json:"visitors"`
}

type Devices struct {
	Browsers []store.NamedCount `json:"browsers"`
	OS       []store.NamedCount `json:"os"`
	Devices  []store.NamedCount `json:"devices"`
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	store Reader
	now   func() time.Time
}

func NewService(reader Reader, opts ...Option) *Service {
	s := &Service{store: reader, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParsePeriod reads the leading "<n>d" of period, clamped to
// [MinPeriodDays, MaxPeriodDays]. Anything else means DefaultPeriodDays.
func ParsePeriod(period string) int {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return DefaultPeriodDays
	}
	days, err := strconv.Atoi(m[1])
	if err != nil || days > MaxPeriodDays {
		// Only overflow fails Atoi here, and that is far past the cap.
		return MaxPeriodDays
	}
	if days < MinPeriodDays {
		return MinPeriodDays
	}
	return days
}

func (s *Service) since(period string) time.Time {
	return s.now().UTC().AddDate(0, 0, -ParsePeriod(period))
}

func (s *Service) startOfToday() time.Time {
	y, m, d := s.now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) Stats(ctx context.Context, period string) (*Summary, error) {
	since := s.since(period)
	today := s.startOfToday()
	sum := &Summary{Period: period}

	counts := []struct {
		dst *int64
		fn  func() (int64, error)
	}{
		{&sum.Pageviews, func() (int64, error) { return s.store.CountPageviews(ctx, since) }},
		{&sum.Visitors, func() (int64, error) { return s.store.CountVisitors(ctx, since) }},
		{&sum.Events, func() (int64, error) { return s.store.CountEvents(ctx, since) }},
		{&sum.Downloads, func() (int64, error) { return s.store.CountEventsNamed(ctx, EventDownloadClick, since) }},
		{&sum.Github, func() (int64, error) { return s.store.CountEventsNamed(ctx, EventGithubClick, since) }},
		{&sum.Today.Pageviews, func() (int64, error) { return s.store.CountPageviews(ctx, today) }},
		{&sum.Today.Visitors, func() (int64, error) { return s.store.CountVisitors(ctx, today) }},
		{&sum.Today.Downloads, func() (int64, error) { return s.store.CountEventsNamed(ctx, EventDownloadClick, today) }},
	}
	for _, c := range counts {
		n, err := c.fn()
		if err != nil {
			return nil, err
		}
		*c.dst = n
	}
	return sum, nil
}

func (s *Service) PageviewsByDay(ctx context.Context, period string) ([]store.DailyPageviews, error) {
	return s.store.PageviewsByDay(ctx, s.since(period))
}

func (s *Service) EventsByName(ctx context.Context, period string) ([]store.NamedCount, error) {
	return s.store.EventCounts(ctx, s.since(period))
}

// Funnel reports every configured step in FunnelSteps order, zero-filled.
func (s *Service) Funnel(ctx context.Context, period string) ([]FunnelStep, error) {
	counts, err := s.store.SectionVisitors(ctx, EventScrollDepth, s.since(period))
	if err != nil {
		return nil, err
	}
	steps := make([]FunnelStep, 0, len(FunnelSteps))
	for _, step := range FunnelSteps {
		steps = append(steps, FunnelStep{Step: step, Visitors: counts[step]})
	}
	return steps, nil
}

// Referrers returns the top ReferrerLimit referrers, with pageviews that had
// no referrer counted under DirectReferrer.
func (s *Service) Referrers(ctx context.Context, period string) ([]store.ReferrerCount, error) {
	return s.store.TopReferrers(ctx, s.since(period), ReferrerLimit)
}

func (s *Service) Devices(ctx context.Context, period string) (*Devices, error) {
	since := s.since(period)
	out := &Devices{}
	for _, g := range []struct {
		dim store.Dimension
		dst *[]store.NamedCount
	}{
		{store.DimensionBrowser, &out.Browsers},
		{store.DimensionOS, &out.OS},
		{store.DimensionDevice, &out.Devices},
	} {
		rows, err := s.store.GroupCounts(ctx, g.dim, since)
		if err != nil {
			return nil, err
		}
		*g.dst = rows
	}
	return out, nil
}
