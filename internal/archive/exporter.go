// Package archive copies completed days of raw records to object storage as
// JSON Lines.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sdko-org/beacon-analytics/internal/models"
	"github.com/sdko-org/beacon-analytics/internal/storage"
	"github.com/sirupsen/logrus"
)

const (
	// Lookback is how many completed days each run reconsiders.
	Lookback    = 7
	contentType = "application/x-ndjson"
)

type Source interface {
	PageviewsBetween(ctx context.Context, from, to time.Time) ([]models.Pageview, error)
	EventsBetween(ctx context.Context, from, to time.Time) ([]models.Event, error)
}

type Exporter struct {
	logger   *logrus.Logger
	source   Source
	storage  storage.Storage
	interval time.Duration
	now      func() time.Time
}

func NewExporter(logger *logrus.Logger, source Source, store storage.Storage, interval time.Duration) *Exporter {
	return &Exporter{
		logger:   logger,
		source:   source,
		storage:  store,
		interval: interval,
		now:      time.Now,
	}
}

// Key is the object key for one day's dump of kind ("pageviews" or "events").
func Key(day time.Time, kind string) string {
	return fmt.Sprintf("exports/%s/%s.jsonl", day.Format("2006-01-02"), kind)
}

func (e *Exporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	logEntry := e.logger.WithField("component", "archive_exporter")
	logEntry.Info("Starting archive exporter")

	e.Run(ctx)
	for {
		select {
		case <-ticker.C:
			e.Run(ctx)
		case <-ctx.Done():
			logEntry.Info("Stopping archive exporter")
			return
		}
	}
}

// Run exports every completed UTC day in the lookback window that is not
// already in storage. It returns the number of objects written.
func (e *Exporter) Run(ctx context.Context) int {
	log := e.logger.WithFields(logrus.Fields{"component": "archive_exporter", "operation": "export"})

	y, m, d := e.now().UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	written := 0
	for i := Lookback; i >= 1; i-- {
		day := today.AddDate(0, 0, -i)
		for _, kind := range []string{"pageviews", "events"} {
			ok, err := e.exportDay(ctx, day, kind)
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{"day": day.Format("2006-01-02"), "kind": kind}).Error("Export failed")
				continue
			}
			if ok {
				written++
			}
		}
	}

	if written > 0 {
		log.WithField("objects", written).Info("Exported archive objects")
	}
	return written
}

func (e *Exporter) exportDay(ctx context.Context, day time.Time, kind string) (bool, error) {
	key := Key(day, kind)
	exists, err := e.storage.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	from, to := day, day.AddDate(0, 0, 1)
	var rows []any
	switch kind {
	case "pageviews":
		pvs, err := e.source.PageviewsBetween(ctx, from, to)
		if err != nil {
			return false, err
		}
		for _, pv := range pvs {
			rows = append(rows, pv)
		}
	case "events":
		evs, err := e.source.EventsBetween(ctx, from, to)
		if err != nil {
			return false, err
		}
		for _, ev := range evs {
			rows = append(rows, ev)
		}
	default:
		return false, fmt.Errorf("unknown export kind %q", kind)
	}

	// Nothing recorded that day; leave the key free in case of late rows.
	if len(rows) == 0 {
		return false, nil
	}

	body, err := encodeLines(rows)
	if err != nil {
		return false, err
	}
	if err := e.storage.Put(ctx, key, body, contentType); err != nil {
		return false, err
	}
	return true, nil
}

func encodeLines(rows []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encode export row: %w", err)
		}
	}
	return buf.Bytes(), nil
}
