package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// mjdEpoch is the Unix time of MJD 0 (1858-11-17T00:00:00 UTC).
const mjdEpoch = -3506716800

// mjdToTime converts a modified Julian date to wall-clock UTC.
func mjdToTime(mjd float64) time.Time {
	seconds := mjd * 86400
	return time.Unix(mjdEpoch+int64(seconds), 0).UTC()
}

// SavePhotometry stores photometry points for an object and refreshes the
// object's last activity stamp from the newest point.
func (ds *DataStore) SavePhotometry(points []PhotometryPoint) error {
	if len(points) == 0 {
		return nil
	}
	objectName := points[0].ObjectName
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&points).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_photometry").
			Context("object", objectName).
			Build()
	}
	return ds.SyncLastPhotometryDate(objectName)
}

// GetPhotometry returns all live photometry points for an object, ordered
// by observation time.
func (ds *DataStore) GetPhotometry(objectName string) ([]PhotometryPoint, error) {
	var points []PhotometryPoint
	err := ds.DB.
		Where("object_name = ?", objectName).
		Order("mjd ASC").
		Find(&points).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_photometry").
			Context("object", objectName).
			Build()
	}
	return points, nil
}

// DeletePhotometryPoint soft-deletes one point and resyncs the object's
// activity stamp, so an expiry run does not count removed data.
func (ds *DataStore) DeletePhotometryPoint(id uint) error {
	var point PhotometryPoint
	if err := ds.DB.First(&point, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Newf("photometry point %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_photometry_point").
			Build()
	}
	if err := ds.DB.Delete(&point).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_photometry_point").
			Context("id", id).
			Build()
	}
	return ds.SyncLastPhotometryDate(point.ObjectName)
}

// SaveSpectrum stores spectrum points for an object.
func (ds *DataStore) SaveSpectrum(points []SpectrumPoint) error {
	if len(points) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&points).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_spectrum").
			Context("object", points[0].ObjectName).
			Build()
	}
	return nil
}

// GetSpectrum returns the points of one spectrum ordered by wavelength.
func (ds *DataStore) GetSpectrum(objectName, spectrumID string) ([]SpectrumPoint, error) {
	var points []SpectrumPoint
	err := ds.DB.
		Where("object_name = ? AND spectrum_id = ?", objectName, spectrumID).
		Order("wavelength ASC").
		Find(&points).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_spectrum").
			Context("object", objectName).
			Build()
	}
	return points, nil
}

// SyncLastPhotometryDate recomputes the object's last_photometry_date from
// its newest live photometry point. With no points left the column is
// cleared and activity falls back to the catalog lastmodified.
func (ds *DataStore) SyncLastPhotometryDate(objectName string) error {
	var maxMJD *float64
	err := ds.DB.Model(&PhotometryPoint{}).
		Where("object_name = ?", objectName).
		Select("MAX(mjd)").
		Scan(&maxMJD).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "sync_last_photometry_date").
			Context("object", objectName).
			Build()
	}

	var stamp *time.Time
	if maxMJD != nil {
		t := mjdToTime(*maxMJD)
		stamp = &t
	}
	err = ds.DB.Model(&TransientObject{}).
		Where("name = ?", objectName).
		Update("last_photometry_date", stamp).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "sync_last_photometry_date").
			Context("object", objectName).
			Build()
	}
	return nil
}

// BrightestMagnitude returns the minimum (brightest) detected magnitude of
// an object across its photometry, or nil with no detections.
func (ds *DataStore) BrightestMagnitude(objectName string) (*float64, error) {
	var brightest *float64
	err := ds.DB.Model(&PhotometryPoint{}).
		Where("object_name = ? AND magnitude IS NOT NULL", objectName).
		Select("MIN(magnitude)").
		Scan(&brightest).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "brightest_magnitude").
			Context("object", objectName).
			Build()
	}
	return brightest, nil
}
