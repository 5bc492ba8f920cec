// Package expiry implements the auto-snooze scheduler: objects with no
// catalog or photometry activity beyond the configured threshold leave the
// inbox, and snoozed objects with fresh activity come back.
package expiry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// RunResult summarizes one expiry sweep.
type RunResult struct {
	Examined    int
	Snoozed     int
	Reactivated int
}

// Service runs the periodic expiry sweep against the object store.
type Service struct {
	store    datastore.Interface
	settings *conf.ExpirySettings
	metrics  *metrics.ExpiryMetrics
	logger   *slog.Logger
	closeLog func() error

	now func() time.Time
}

// New creates an expiry Service. The metrics collector may be nil.
func New(store datastore.Interface, settings *conf.ExpirySettings, m *metrics.ExpiryMetrics, logCfg *conf.LogConfig) *Service {
	logger, closeLog := logging.ForService("expiry", slog.LevelInfo, logCfg)
	return &Service{
		store:    store,
		settings: settings,
		metrics:  m,
		logger:   logger,
		closeLog: closeLog,
		now:      time.Now,
	}
}

// Run performs one sweep. Inbox objects whose last activity (photometry if
// recorded, otherwise the catalog lastmodified) predates the threshold are
// snoozed; an object under follow-up keeps its flags' snooze side effect of
// closing the follow-up out. Snoozed objects with recent activity return to
// the inbox.
func (s *Service) Run() (*RunResult, error) {
	threshold := s.settings.ThresholdDays
	if threshold <= 0 {
		threshold = 15
	}
	cutoff := s.now().UTC().AddDate(0, 0, -threshold)
	result := &RunResult{}

	candidates, err := s.store.ExpiryCandidates(cutoff)
	if err != nil {
		return nil, err
	}
	result.Examined = len(candidates)
	for i := range candidates {
		obj := &candidates[i]
		flags, err := workflow.Apply(obj.Flags(), workflow.TagSnoozed)
		if err != nil {
			return nil, err
		}
		rows, err := s.store.UpdateObjectFlags(obj.Name, flags)
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			result.Snoozed++
			s.logger.Info("object snoozed for inactivity",
				"name", obj.Name,
				"cutoff", cutoff.Format(time.RFC3339),
				"was_following", obj.Follow)
		}
	}

	awake, err := s.store.SnoozedActiveSince(cutoff)
	if err != nil {
		return nil, err
	}
	for i := range awake {
		obj := &awake[i]
		flags, err := workflow.Apply(obj.Flags(), workflow.TagObject)
		if err != nil {
			return nil, err
		}
		rows, err := s.store.UpdateObjectFlags(obj.Name, flags)
		if err != nil {
			return nil, err
		}
		if rows > 0 {
			result.Reactivated++
			s.logger.Info("snoozed object reactivated", "name", obj.Name)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordRun(result.Snoozed, result.Reactivated)
	}
	s.logger.Info("expiry sweep completed",
		"examined", result.Examined,
		"snoozed", result.Snoozed,
		"reactivated", result.Reactivated,
		"threshold_days", threshold)
	return result, nil
}

// StartScheduler runs Run once per day at the configured local time until
// stopChan closes. An immediate sweep runs on start so a restarted service
// catches up.
func (s *Service) StartScheduler(stopChan <-chan struct{}) {
	s.logger.Info("starting expiry scheduler",
		"run_at", s.settings.RunAt,
		"threshold_days", s.settings.ThresholdDays)

	if _, err := s.Run(); err != nil {
		s.logger.Warn("initial expiry sweep failed", "error", err)
	}

	for {
		wait := time.Until(s.nextRun())
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			if _, err := s.Run(); err != nil {
				s.logger.Warn("expiry sweep failed", "error", err)
			}
		case <-stopChan:
			timer.Stop()
			s.logger.Info("stopping expiry scheduler")
			return
		}
	}
}

// nextRun returns the next wall-clock occurrence of the configured HH:MM.
func (s *Service) nextRun() time.Time {
	now := s.now()
	hour, minute := 0, 20
	if s.settings.RunAt != "" {
		if _, err := fmt.Sscanf(s.settings.RunAt, "%d:%d", &hour, &minute); err != nil {
			s.logger.Warn("invalid expiry.runat, using 00:20", "value", s.settings.RunAt)
			hour, minute = 0, 20
		}
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Close releases the service's log writer.
func (s *Service) Close() {
	if s.closeLog != nil {
		_ = s.closeLog()
	}
}
