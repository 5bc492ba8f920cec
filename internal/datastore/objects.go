package datastore

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/errors"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// ErrObjectNotFound is returned when no object row matches the given name.
var ErrObjectNotFound = errors.NewStd("transient object not found")

// LastModifiedByObjID returns the stored lastmodified timestamp for each of
// the given object ids that already exists. Used by the importer to decide
// insert vs update vs skip for a whole batch with one query.
func (ds *DataStore) LastModifiedByObjID(objIDs []int64) (map[int64]time.Time, error) {
	result := make(map[int64]time.Time, len(objIDs))
	if len(objIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ObjID        int64
		LastModified time.Time
	}
	if err := ds.DB.Model(&TransientObject{}).
		Select("obj_id", "last_modified").
		Where("obj_id IN ?", objIDs).
		Find(&rows).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "last_modified_by_objid").
			Build()
	}
	for _, r := range rows {
		result[r.ObjID] = r.LastModified
	}
	return result, nil
}

// InsertObjects creates all given objects in a single transaction. The
// caller is responsible for chunking into batches.
func (ds *DataStore) InsertObjects(objects []*TransientObject) error {
	if len(objects) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(objects).Error
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "insert_objects").
			Context("count", len(objects)).
			Build()
	}
	return nil
}

// RefreshObjects overwrites the catalog-provided fields of existing objects
// in a single transaction. Workflow flags are not touched except that fresh
// catalog activity pulls the object back into the inbox, so a snoozed target
// with new reports resurfaces.
func (ds *DataStore) RefreshObjects(objects []*TransientObject) error {
	if len(objects) == 0 {
		return nil
	}
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for _, obj := range objects {
			res := tx.Model(&TransientObject{}).
				Where("obj_id = ?", obj.ObjID).
				Updates(map[string]any{
					"name_prefix":      obj.NamePrefix,
					"name":             obj.Name,
					"ra":               obj.RA,
					"declination":      obj.Declination,
					"redshift":         obj.Redshift,
					"type_id":          obj.TypeID,
					"type":             obj.Type,
					"reporting_group":  obj.ReportingGroup,
					"source_group":     obj.SourceGroup,
					"discovery_date":   obj.DiscoveryDate,
					"discovery_mag":    obj.DiscoveryMag,
					"discovery_filter": obj.DiscoveryFilter,
					"reporters":        obj.Reporters,
					"time_received":    obj.TimeReceived,
					"internal_names":   obj.InternalNames,
					"discovery_bib":    obj.DiscoveryBib,
					"class_bib":        obj.ClassBib,
					"creation_date":    obj.CreationDate,
					"last_modified":    obj.LastModified,
					"inbox":            true,
					"snoozed":          false,
					"update_count":     gorm.Expr("update_count + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "refresh_objects").
			Context("count", len(objects)).
			Build()
	}
	return nil
}

// GetObject fetches an object by name. Falls back to a case-insensitive
// match and then to stripping a "prefix name" display form, matching how
// operators paste names from the dashboard.
func (ds *DataStore) GetObject(name string) (*TransientObject, error) {
	for _, candidate := range nameCandidates(name) {
		var obj TransientObject
		err := ds.DB.Where("LOWER(name) = ?", strings.ToLower(candidate)).First(&obj).Error
		if err == nil {
			return &obj, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "get_object").
				Context("name", name).
				Build()
		}
	}
	return nil, ErrObjectNotFound
}

// UpdateObjectFlags stores a workflow flag state on the named object,
// returning the number of rows updated. Concurrent transitions on the same
// object serialize on the row; last writer wins.
func (ds *DataStore) UpdateObjectFlags(name string, f workflow.Flags) (int64, error) {
	for _, candidate := range nameCandidates(name) {
		res := ds.DB.Model(&TransientObject{}).
			Where("LOWER(name) = ?", strings.ToLower(candidate)).
			Updates(map[string]any{
				"inbox":         f.Inbox,
				"snoozed":       f.Snoozed,
				"follow":        f.Follow,
				"finish_follow": f.FinishFollow,
			})
		if res.Error != nil {
			return 0, errors.New(res.Error).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "update_object_flags").
				Context("name", name).
				Build()
		}
		if res.RowsAffected > 0 {
			return res.RowsAffected, nil
		}
	}
	return 0, nil
}

// UpdateObjectPhysical stores operator-confirmed redshift and derived
// absolute magnitude on the object. Nil values clear the columns.
func (ds *DataStore) UpdateObjectPhysical(name string, redshift, brightestAbsMag *float64) error {
	res := ds.DB.Model(&TransientObject{}).
		Where("name = ?", name).
		Updates(map[string]any{
			"redshift":          redshift,
			"brightest_abs_mag": brightestAbsMag,
		})
	if res.Error != nil {
		return errors.New(res.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "update_object_physical").
			Context("name", name).
			Build()
	}
	if res.RowsAffected == 0 {
		return ErrObjectNotFound
	}
	return nil
}

// nameCandidates expands an operator-supplied name into lookup candidates:
// the name as given, then the suffix after the last space for "SN 2025abc"
// style display names.
func nameCandidates(name string) []string {
	candidates := []string{name}
	if idx := strings.LastIndex(name, " "); idx >= 0 && idx < len(name)-1 {
		candidates = append(candidates, name[idx+1:])
	}
	return candidates
}

// applyFilter translates a SearchFilter into query conditions.
func applyFilter(q *gorm.DB, filter *SearchFilter) *gorm.DB {
	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Where("name LIKE ? OR name_prefix LIKE ? OR internal_names LIKE ?",
			pattern, pattern, pattern)
	}
	if filter.Type != "" {
		if strings.EqualFold(filter.Type, "AT") {
			q = q.Where("type IS NULL OR type = '' OR type = 'AT'")
		} else {
			q = q.Where("type = ?", filter.Type)
		}
	}
	if filter.DateFrom != "" {
		q = q.Where("discovery_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("discovery_date <= ?", filter.DateTo)
	}
	switch filter.Tag {
	case workflow.TagObject:
		q = q.Where("inbox = ? AND snoozed = ?", true, false)
	case workflow.TagFollowup:
		q = q.Where("follow = ? AND finish_follow = ?", true, false)
	case workflow.TagFinished:
		q = q.Where("finish_follow = ?", true)
	case workflow.TagSnoozed:
		q = q.Where("snoozed = ?", true)
	}
	return q
}

var validSortColumns = map[string]string{
	"discoverydate": "discovery_date",
	"name":          "name",
	"type":          "type",
	"redshift":      "redshift",
	"discoverymag":  "discovery_mag",
	"lastmodified":  "last_modified",
	"brightestmag":  "brightest_mag",
}

// SearchObjects returns objects matching the filter, paginated.
func (ds *DataStore) SearchObjects(filter SearchFilter) ([]TransientObject, error) {
	q := applyFilter(ds.DB.Model(&TransientObject{}), &filter)

	column, ok := validSortColumns[strings.ToLower(filter.SortBy)]
	if !ok {
		column = "discovery_date"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	q = q.Order(column + " " + direction)

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var objects []TransientObject
	if err := q.Find(&objects).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "search_objects").
			Build()
	}
	return objects, nil
}

// CountObjects counts objects matching the filter.
func (ds *DataStore) CountObjects(filter SearchFilter) (int64, error) {
	var count int64
	filter.Limit, filter.Offset = 0, 0
	q := applyFilter(ds.DB.Model(&TransientObject{}), &filter)
	if err := q.Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_objects").
			Build()
	}
	return count, nil
}

// TagStatistics counts objects per effective workflow tag, using the same
// flag combinations as the search filters.
func (ds *DataStore) TagStatistics() (map[workflow.Tag]int64, error) {
	stats := make(map[workflow.Tag]int64, 4)
	for _, tag := range []workflow.Tag{workflow.TagObject, workflow.TagFollowup, workflow.TagFinished, workflow.TagSnoozed} {
		count, err := ds.CountObjects(SearchFilter{Tag: tag})
		if err != nil {
			return nil, err
		}
		stats[tag] = count
	}
	return stats, nil
}

// CountByType returns classified object counts grouped by type.
func (ds *DataStore) CountByType() (map[string]int64, error) {
	var rows []struct {
		Type  string
		Count int64
	}
	err := ds.DB.Model(&TransientObject{}).
		Select("type, COUNT(*) as count").
		Where("type IS NOT NULL AND type != ''").
		Group("type").
		Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_by_type").
			Build()
	}
	result := make(map[string]int64, len(rows))
	for _, r := range rows {
		result[r.Type] = r.Count
	}
	return result, nil
}

// TotalObjects returns the total object count.
func (ds *DataStore) TotalObjects() (int64, error) {
	var count int64
	if err := ds.DB.Model(&TransientObject{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "total_objects").
			Build()
	}
	return count, nil
}

// ExpiryCandidates returns inbox objects whose last activity (photometry if
// present, otherwise the catalog lastmodified) is older than the cutoff.
// Snoozed objects are excluded by the inbox precondition, which makes the
// expiry run re-entrant.
func (ds *DataStore) ExpiryCandidates(cutoff time.Time) ([]TransientObject, error) {
	var objects []TransientObject
	err := ds.DB.
		Where("inbox = ?", true).
		Where("COALESCE(last_photometry_date, last_modified) < ?", cutoff).
		Find(&objects).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "expiry_candidates").
			Build()
	}
	return objects, nil
}

// SnoozedActiveSince returns snoozed objects with activity newer than the
// cutoff, eligible to be pulled back into the inbox.
func (ds *DataStore) SnoozedActiveSince(cutoff time.Time) ([]TransientObject, error) {
	var objects []TransientObject
	err := ds.DB.
		Where("snoozed = ?", true).
		Where("COALESCE(last_photometry_date, last_modified) >= ?", cutoff).
		Find(&objects).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "snoozed_active_since").
			Build()
	}
	return objects, nil
}
