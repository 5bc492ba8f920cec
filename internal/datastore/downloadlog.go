package datastore

import (
	"time"

	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// StartDownloadLog records an import run in its in_progress state, so a
// crash leaves a visible unfinished row instead of nothing.
func (ds *DataStore) StartDownloadLog(log *DownloadLog) error {
	if log.Status == "" {
		log.Status = DownloadInProgress
	}
	if log.DownloadTime.IsZero() {
		log.DownloadTime = time.Now().UTC()
	}
	if err := ds.DB.Create(log).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "start_download_log").
			Context("filename", log.Filename).
			Build()
	}
	return nil
}

// FinishDownloadLog closes out an import run with its final status and
// counters.
func (ds *DataStore) FinishDownloadLog(id uint, status string, imported, updated, skipped int, errMsg string) error {
	now := time.Now().UTC()
	res := ds.DB.Model(&DownloadLog{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":           status,
			"records_imported": imported,
			"records_updated":  updated,
			"records_skipped":  skipped,
			"error_message":    errMsg,
			"completed_at":     &now,
		})
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "finish_download_log").
			Context("id", id).
			Build()
	}
	if res.RowsAffected == 0 {
		return errors.Newf("download log %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// RecentDownloads returns the newest import runs, most recent first.
func (ds *DataStore) RecentDownloads(limit int) ([]DownloadLog, error) {
	if limit <= 0 {
		limit = 10
	}
	var logs []DownloadLog
	err := ds.DB.
		Order("download_time DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "recent_downloads").
			Build()
	}
	return logs, nil
}
