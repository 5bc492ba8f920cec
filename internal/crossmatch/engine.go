package crossmatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/logging"
	"github.com/kinderlab/tnsmarshal/internal/observability/metrics"
)

// CandidateError wraps a failure on a single catalog candidate. These are
// counted and logged but never abort the object or the run.
type CandidateError struct {
	Catalog string
	Target  string
	Err     error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("candidate failure in catalog %s for %s: %v", e.Catalog, e.Target, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }

// RunResult summarizes one cross-match run.
type RunResult struct {
	Objects         int
	MatchesByCat    map[string]int
	Saved           int
	CandidateErrors int
}

// Engine cross-matches objects against a set of reference catalogs and
// persists the results.
type Engine struct {
	store    datastore.Interface
	catalogs []Catalog
	workers  int
	metrics  *metrics.CrossMatchMetrics
	logger   *slog.Logger
	closeLog func() error
}

// New creates an Engine over the given store and catalogs.  The metrics
// collector may be nil.
func New(store datastore.Interface, catalogs []Catalog, workers int, m *metrics.CrossMatchMetrics, logCfg *conf.LogConfig) *Engine {
	if workers < 1 {
		workers = 1
	}
	logger, closeLog := logging.ForService("crossmatch", slog.LevelInfo, logCfg)
	return &Engine{
		store:    store,
		catalogs: catalogs,
		workers:  workers,
		metrics:  m,
		logger:   logger,
		closeLog: closeLog,
	}
}

// MatchObject matches one object against one catalog. A catalog query
// failure degrades to an empty result; a single bad candidate is skipped
// and counted. Matches come back sorted nearest first; host-candidate
// selection happens across all catalogs in matchAll.
func (e *Engine) MatchObject(obj *datastore.TransientObject, catalog Catalog) ([]datastore.CrossMatchResult, int) {
	box := SearchBox(obj.RA, obj.Declination, catalog.RadiusArcsec())
	candidates, err := catalog.CandidatesInBox(box)
	if err != nil {
		if e.metrics != nil {
			e.metrics.CatalogFailures.WithLabelValues(catalog.Name()).Inc()
		}
		e.logger.Error("catalog query failed, degrading to empty result",
			"catalog", catalog.Name(), "target", obj.Name, "error", err)
		return nil, 0
	}

	candidateErrors := 0
	var matches []datastore.CrossMatchResult
	for _, candidate := range candidates {
		ra, dec := candidate.Position()
		sep := Separation(obj.RA, obj.Declination, ra, dec)
		if sep > catalog.RadiusArcsec() {
			continue
		}
		payload, err := candidate.Payload()
		if err != nil {
			candidateErrors++
			cerr := &CandidateError{Catalog: catalog.Name(), Target: obj.Name, Err: err}
			e.logger.Warn("skipping candidate", "error", cerr)
			continue
		}
		matches = append(matches, datastore.CrossMatchResult{
			TargetName:       obj.Name,
			CatalogName:      catalog.Name(),
			MatchData:        payload,
			SeparationArcsec: sep,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].SeparationArcsec < matches[j].SeparationArcsec
	})
	return matches, candidateErrors
}

// matchAll runs one object through every catalog and flags the single
// nearest match across all of them as the host candidate, unless the
// operator already confirmed a host for this target. At most one match
// per object carries the host flag.
func (e *Engine) matchAll(obj *datastore.TransientObject) (map[string][]datastore.CrossMatchResult, int) {
	start := time.Now()
	byCatalog := make(map[string][]datastore.CrossMatchResult, len(e.catalogs))
	candidateErrors := 0
	for _, catalog := range e.catalogs {
		matches, errs := e.MatchObject(obj, catalog)
		candidateErrors += errs
		if len(matches) > 0 {
			byCatalog[catalog.Name()] = matches
		}
	}

	if len(byCatalog) > 0 {
		hasHost, err := e.store.HostExists(obj.Name)
		switch {
		case err != nil:
			e.logger.Warn("host lookup failed, leaving host flag unset",
				"target", obj.Name, "error", err)
		case !hasHost:
			var nearest *datastore.CrossMatchResult
			for name := range byCatalog {
				// Matches are sorted, the catalog's nearest is index 0.
				candidate := &byCatalog[name][0]
				if nearest == nil || candidate.SeparationArcsec < nearest.SeparationArcsec {
					nearest = candidate
				}
			}
			nearest.IsHost = true
		}
	}
	if e.metrics != nil {
		e.metrics.ObjectsMatched.Inc()
		e.metrics.MatchDuration.Observe(time.Since(start).Seconds())
		for name, matches := range byCatalog {
			e.metrics.MatchesFound.WithLabelValues(name).Add(float64(len(matches)))
		}
		e.metrics.CandidateErrors.Add(float64(candidateErrors))
	}
	return byCatalog, candidateErrors
}

// Run cross-matches all objects across a bounded worker pool and persists
// every match. Per-object work is independent and idempotent, so ordering
// across workers does not matter.
func (e *Engine) Run(ctx context.Context, objects []datastore.TransientObject) (*RunResult, error) {
	result := &RunResult{MatchesByCat: make(map[string]int)}
	if len(objects) == 0 {
		return result, nil
	}

	type objectMatches struct {
		byCatalog map[string][]datastore.CrossMatchResult
		errors    int
	}

	jobs := make(chan *datastore.TransientObject)
	out := make(chan objectMatches, len(objects))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for obj := range jobs {
				byCatalog, errs := e.matchAll(obj)
				out <- objectMatches{byCatalog: byCatalog, errors: errs}
			}
		}()
	}

feed:
	for i := range objects {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- &objects[i]:
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	var all []datastore.CrossMatchResult
	for om := range out {
		result.Objects++
		result.CandidateErrors += om.errors
		for name, matches := range om.byCatalog {
			result.MatchesByCat[name] += len(matches)
			all = append(all, matches...)
		}
	}

	saved, err := e.store.SaveCrossMatches(all)
	if err != nil {
		return nil, err
	}
	result.Saved = saved

	if err := ctx.Err(); err != nil {
		return result, err
	}
	e.logger.Info("cross-match run completed",
		"objects", result.Objects,
		"saved", result.Saved,
		"candidate_errors", result.CandidateErrors)
	return result, nil
}

// Catalogs returns the engine's catalog set, in match order.
func (e *Engine) Catalogs() []Catalog {
	return e.catalogs
}

// Close releases the engine's log writer.
func (e *Engine) Close() {
	if e.closeLog != nil {
		_ = e.closeLog()
	}
}
