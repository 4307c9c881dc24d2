// Package ingest turns tracking beacons into stored pageviews and events.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sdko-org/beacon-analytics/internal/models"
	"github.com/sdko-org/beacon-analytics/internal/useragent"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	MaxLangLen      = 10
	MaxEventNameLen = 64
	MaxEventDataLen = 512
	MaxEventPathLen = 256
	DefaultPath     = "/"
)

var (
	ErrInvalidJSON = errors.New("event body is not a JSON object")
	ErrMissingName = errors.New("event name is required")
)

type Writer interface {
	InsertPageview(ctx context.Context, pv *models.Pageview) error
	InsertEvent(ctx context.Context, ev *models.Event) error
}

type Admitter interface {
	Allow(key string) bool
}

type Hasher interface {
	Hash(address, userAgent string) string
}

type PageviewBeacon struct {
	ClientAddr     string
	UserAgent      string
	Referrer       string
	AcceptLanguage string
	Path           string
}

type EventBeacon struct {
	ClientAddr string
	UserAgent  string
	Body       []byte
}

type Service struct {
	store   Writer
	limiter Admitter
	hasher  Hasher
	log     *logrus.Entry

	// Rejections can arrive in floods; one log line per interval is enough.
	rejectLog rate.Sometimes
}

func NewService(logger *logrus.Logger, store Writer, limiter Admitter, hasher Hasher) *Service {
	return &Service{
		store:     store,
		limiter:   limiter,
		hasher:    hasher,
		log:       logger.WithField("component", "ingest"),
		rejectLog: rate.Sometimes{Interval: 10 * time.Second},
	}
}

// RecordPageview stores one pageview unless the client is over its rate
// limit. recorded is false for a rate-limited beacon; callers still answer
// it as a success.
func (s *Service) RecordPageview(ctx context.Context, b PageviewBeacon) (recorded bool, err error) {
	if !s.admit(b.ClientAddr, "pageview") {
		return false, nil
	}

	path := b.Path
	if path == "" {
		path = DefaultPath
	}
	client := useragent.Classify(b.UserAgent)

	pv := &models.Pageview{
		Path:        path,
		Referrer:    b.Referrer,
		VisitorHash: s.hasher.Hash(b.ClientAddr, b.UserAgent),
		Browser:     client.Browser,
		OS:          client.OS,
		Device:      client.Device,
		Lang:        truncate(b.AcceptLanguage, MaxLangLen),
	}
	if err := s.store.InsertPageview(ctx, pv); err != nil {
		return false, fmt.Errorf("record pageview: %w", err)
	}
	return true, nil
}

// RecordEvent parses and stores a custom event. The rate limit is checked
// before the body is looked at, so a limited client gets a success even for
// a malformed body.
func (s *Service) RecordEvent(ctx context.Context, b EventBeacon) (recorded bool, err error) {
	if !s.admit(b.ClientAddr, "event") {
		return false, nil
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(b.Body, &body); err != nil || body == nil {
		return false, ErrInvalidJSON
	}

	name := truncate(stringField(body, "name", ""), MaxEventNameLen)
	if name == "" {
		return false, ErrMissingName
	}

	ev := &models.Event{
		Name:        name,
		Data:        truncate(serializeData(body["data"]), MaxEventDataLen),
		VisitorHash: s.hasher.Hash(b.ClientAddr, b.UserAgent),
		Path:        truncate(stringField(body, "path", DefaultPath), MaxEventPathLen),
	}
	if err := s.store.InsertEvent(ctx, ev); err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}
	return true, nil
}

func (s *Service) admit(addr, kind string) bool {
	if s.limiter.Allow(addr) {
		return true
	}
	s.rejectLog.Do(func() {
		s.log.WithField("kind", kind).Debug("Dropping rate limited beacon")
	})
	return false
}

// ClientAddress picks the first X-Forwarded-For entry when present, trusting
// the proxy in front of us, and otherwise the transport peer address.
func ClientAddress(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if remoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// stringField reads key as text. Missing and null both yield def, so a null
// name counts as missing rather than being stored as a placeholder.
// Non-string values keep their JSON text.
func stringField(body map[string]json.RawMessage, key, def string) string {
	raw, ok := body[key]
	if !ok || string(raw) == "null" {
		return def
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// serializeData renders the payload with dumpData. A missing payload is
// stored as an empty object.
func serializeData(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	out, err := dumpData(raw)
	if err != nil {
		return "{}"
	}
	return out
}

// truncate cuts s to at most n characters. Cutting the serialized payload
// this way can leave invalid JSON behind; readers must tolerate that.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
