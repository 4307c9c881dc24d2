package handlers

import (
	"context"

	"github.com/sdko-org/beacon-analytics/internal/ingest"
	"github.com/sdko-org/beacon-analytics/internal/stats"
	"github.com/sirupsen/logrus"
)

// maxEventBody bounds how much of an event POST is read.
const maxEventBody = 64 << 10

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	ingest        *ingest.Service
	stats         *stats.Service
	health        Pinger
	dashboardPath string
	log           *logrus.Entry
}

func NewHandler(logger *logrus.Logger, ingestSvc *ingest.Service, statsSvc *stats.Service, health Pinger, dashboardPath string) *Handler {
	return &Handler{
		ingest:        ingestSvc,
		stats:         statsSvc,
		health:        health,
		dashboardPath: dashboardPath,
		log:           logger.WithField("component", "handler"),
	}
}
