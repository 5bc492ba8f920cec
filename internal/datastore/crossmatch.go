package datastore

import (
	"math"
	"time"

	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// separationEpsilon is the tolerance in arcseconds under which two stored
// separations for the same target/catalog pair count as the same match.
const separationEpsilon = 0.0001

// ErrMatchNotFound is returned when no cross-match row matches the given id.
var ErrMatchNotFound = errors.NewStd("cross-match result not found")

// SaveCrossMatches stores cross-match results, skipping rows that duplicate
// an existing (target, catalog, separation) triple. Returns the number of
// rows actually inserted.
func (ds *DataStore) SaveCrossMatches(results []CrossMatchResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}
	saved := 0
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for i := range results {
			r := &results[i]
			var existing []CrossMatchResult
			if err := tx.Select("id", "separation_arcsec").
				Where("target_name = ? AND catalog_name = ?", r.TargetName, r.CatalogName).
				Find(&existing).Error; err != nil {
				return err
			}
			duplicate := false
			for _, e := range existing {
				if math.Abs(e.SeparationArcsec-r.SeparationArcsec) < separationEpsilon {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			if err := tx.Create(r).Error; err != nil {
				return err
			}
			saved++
		}
		return nil
	})
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_cross_matches").
			Context("count", len(results)).
			Build()
	}
	return saved, nil
}

// CrossMatchesForDate returns all results stored on the given UTC date
// (YYYY-MM-DD), ordered by target then separation.
func (ds *DataStore) CrossMatchesForDate(date string) ([]CrossMatchResult, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryValidation).
			Context("operation", "cross_matches_for_date").
			Context("date", date).
			Build()
	}
	next := day.AddDate(0, 0, 1)

	var results []CrossMatchResult
	dbErr := ds.DB.
		Where("created_at >= ? AND created_at < ?", day, next).
		Order("target_name ASC, separation_arcsec ASC").
		Find(&results).Error
	if dbErr != nil {
		return nil, errors.New(dbErr).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "cross_matches_for_date").
			Context("date", date).
			Build()
	}
	return results, nil
}

// CrossMatchDates lists the distinct UTC dates that have stored results,
// newest first.
func (ds *DataStore) CrossMatchDates() ([]string, error) {
	var stamps []time.Time
	err := ds.DB.Model(&CrossMatchResult{}).
		Order("created_at DESC").
		Pluck("created_at", &stamps).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "cross_match_dates").
			Build()
	}
	seen := make(map[string]bool)
	var dates []string
	for _, ts := range stamps {
		d := ts.UTC().Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	return dates, nil
}

// GetCrossMatch fetches a single result by id.
func (ds *DataStore) GetCrossMatch(matchID uint) (*CrossMatchResult, error) {
	var result CrossMatchResult
	err := ds.DB.First(&result, matchID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_cross_match").
			Context("match_id", matchID).
			Build()
	}
	return &result, nil
}

// HostExists reports whether any stored match for the target is already
// marked as its host.
func (ds *DataStore) HostExists(targetName string) (bool, error) {
	var count int64
	err := ds.DB.Model(&CrossMatchResult{}).
		Where("target_name = ? AND is_host = ?", targetName, true).
		Count(&count).Error
	if err != nil {
		return false, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "host_exists").
			Context("target", targetName).
			Build()
	}
	return count > 0, nil
}

// SetHost marks the given match as the host of the target, clearing the
// host flag from every other match of the same target first.
func (ds *DataStore) SetHost(matchID uint, targetName string) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CrossMatchResult{}).
			Where("target_name = ?", targetName).
			Update("is_host", false).Error; err != nil {
			return err
		}
		res := tx.Model(&CrossMatchResult{}).
			Where("id = ? AND target_name = ?", matchID, targetName).
			Update("is_host", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMatchNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			return err
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "set_host").
			Context("match_id", matchID).
			Context("target", targetName).
			Build()
	}
	return nil
}

// UnsetHost clears the host flag from all matches of the target.
func (ds *DataStore) UnsetHost(targetName string) error {
	err := ds.DB.Model(&CrossMatchResult{}).
		Where("target_name = ?", targetName).
		Update("is_host", false).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "unset_host").
			Context("target", targetName).
			Build()
	}
	return nil
}
