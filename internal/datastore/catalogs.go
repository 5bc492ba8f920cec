package datastore

import (
	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// GalaxiesInBox returns DESI galaxies whose coordinates fall inside the
// bounding box. The box is a coarse prefilter; the caller applies the exact
// angular separation cut.
func (ds *DataStore) GalaxiesInBox(box Box) ([]DESIGalaxy, error) {
	var galaxies []DESIGalaxy
	err := ds.DB.
		Where("ra BETWEEN ? AND ?", box.RAMin, box.RAMax).
		Where("dec BETWEEN ? AND ?", box.DecMin, box.DecMax).
		Find(&galaxies).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryCatalog).
			Context("operation", "galaxies_in_box").
			Build()
	}
	return galaxies, nil
}

// LensesInBox returns lens candidates from the named lens table inside the
// bounding box. Both lens catalogs share the LensCandidate schema and differ
// only by table.
func (ds *DataStore) LensesInBox(table string, box Box) ([]LensCandidate, error) {
	if table != TableLensHsu && table != TableLensKarp {
		return nil, errors.Newf("unknown lens table %q", table).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	var lenses []LensCandidate
	err := ds.DB.Table(table).
		Where("ra BETWEEN ? AND ?", box.RAMin, box.RAMax).
		Where("dec BETWEEN ? AND ?", box.DecMin, box.DecMax).
		Find(&lenses).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryCatalog).
			Context("operation", "lenses_in_box").
			Context("table", table).
			Build()
	}
	return lenses, nil
}
