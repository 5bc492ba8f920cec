// Package marshal is the operator-facing service layer: status transitions,
// host confirmation, search and dashboard statistics over the object store.
package marshal

import (
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// statsCacheTTL bounds how stale the dashboard counters may be. Statistics
// queries scan the whole object table, so they are not recomputed per page
// load.
const statsCacheTTL = 30 * time.Second

const (
	cacheKeyTagStats = "tag_statistics"
	cacheKeyOverview = "overview"
)

// Statistics is the dashboard overview.
type Statistics struct {
	TotalObjects    int64
	ByTag           map[workflow.Tag]int64
	ByType          map[string]int64
	RecentDownloads []datastore.DownloadLog
}

// Service exposes the operator actions over the object store.
type Service struct {
	store    datastore.Interface
	cache    *gocache.Cache
	logger   *slog.Logger
	closeLog func() error
}

// NewService creates the operator service.
func NewService(store datastore.Interface, logCfg *conf.LogConfig) *Service {
	logger, closeLog := logging.ForService("marshal", slog.LevelInfo, logCfg)
	return &Service{
		store:    store,
		cache:    gocache.New(statsCacheTTL, 2*statsCacheTTL),
		logger:   logger,
		closeLog: closeLog,
	}
}

// SetStatus applies a workflow transition to the named object. The name may
// be the bare catalog name or the prefixed display form in any case.
func (s *Service) SetStatus(name string, tag workflow.Tag) error {
	if !workflow.IsValid(tag) {
		return errors.Newf("unknown status tag %q", tag).
			Component("marshal").
			Category(errors.CategoryValidation).
			Build()
	}

	obj, err := s.store.GetObject(name)
	if err != nil {
		return err
	}
	flags, err := workflow.Apply(obj.Flags(), tag)
	if err != nil {
		return err
	}
	rows, err := s.store.UpdateObjectFlags(obj.Name, flags)
	if err != nil {
		return err
	}
	if rows == 0 {
		return datastore.ErrObjectNotFound
	}

	s.cache.Delete(cacheKeyTagStats)
	s.cache.Delete(cacheKeyOverview)
	s.logger.Info("status changed",
		"name", obj.Name,
		"tag", string(tag),
		"effective", string(workflow.EffectiveTag(flags)))
	return nil
}

// SetHost confirms a cross-match as the target's host galaxy. When a
// redshift is supplied it is stored on the object together with the
// absolute magnitude derived from the brightest photometry point.
func (s *Service) SetHost(matchID uint, targetName string, redshift *float64) error {
	obj, err := s.store.GetObject(targetName)
	if err != nil {
		return err
	}
	if err := s.store.SetHost(matchID, obj.Name); err != nil {
		return err
	}

	if redshift != nil {
		var absMag *float64
		brightest, err := s.store.BrightestMagnitude(obj.Name)
		if err != nil {
			return err
		}
		if brightest != nil {
			m := AbsoluteMagnitude(*brightest, *redshift)
			absMag = &m
		}
		if err := s.store.UpdateObjectPhysical(obj.Name, redshift, absMag); err != nil {
			return err
		}
	}

	s.logger.Info("host confirmed",
		"name", obj.Name,
		"match_id", matchID,
		"redshift", redshift)
	return nil
}

// UnsetHost withdraws the host confirmation for a target and clears the
// host-derived physical values.
func (s *Service) UnsetHost(targetName string) error {
	obj, err := s.store.GetObject(targetName)
	if err != nil {
		return err
	}
	if err := s.store.UnsetHost(obj.Name); err != nil {
		return err
	}
	if err := s.store.UpdateObjectPhysical(obj.Name, nil, nil); err != nil {
		return err
	}
	s.logger.Info("host withdrawn", "name", obj.Name)
	return nil
}

// CrossMatchResults returns the matches stored on one UTC date.
func (s *Service) CrossMatchResults(date string) ([]datastore.CrossMatchResult, error) {
	return s.store.CrossMatchesForDate(date)
}

// AvailableDates lists the dates with stored cross-match results, newest
// first.
func (s *Service) AvailableDates() ([]string, error) {
	return s.store.CrossMatchDates()
}

// Search returns one page of objects plus the unpaginated total.
func (s *Service) Search(filter datastore.SearchFilter) ([]datastore.TransientObject, int64, error) {
	objects, err := s.store.SearchObjects(filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.CountObjects(filter)
	if err != nil {
		return nil, 0, err
	}
	return objects, total, nil
}

// TagStatistics returns the per-tag object counts, cached briefly.
func (s *Service) TagStatistics() (map[workflow.Tag]int64, error) {
	if cached, ok := s.cache.Get(cacheKeyTagStats); ok {
		return cached.(map[workflow.Tag]int64), nil
	}
	stats, err := s.store.TagStatistics()
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(cacheKeyTagStats, stats)
	return stats, nil
}

// Statistics returns the dashboard overview, cached briefly.
func (s *Service) Statistics() (*Statistics, error) {
	if cached, ok := s.cache.Get(cacheKeyOverview); ok {
		return cached.(*Statistics), nil
	}

	total, err := s.store.TotalObjects()
	if err != nil {
		return nil, err
	}
	byTag, err := s.TagStatistics()
	if err != nil {
		return nil, err
	}
	byType, err := s.store.CountByType()
	if err != nil {
		return nil, err
	}
	downloads, err := s.store.RecentDownloads(10)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{
		TotalObjects:    total,
		ByTag:           byTag,
		ByType:          byType,
		RecentDownloads: downloads,
	}
	s.cache.SetDefault(cacheKeyOverview, stats)
	return stats, nil
}

// Close releases the service's log writer.
func (s *Service) Close() {
	if s.closeLog != nil {
		_ = s.closeLog()
	}
}
