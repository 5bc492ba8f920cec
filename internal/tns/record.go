// Package tns implements the ingestion pipeline for the public transient
// catalog: fetching dated batch archives, parsing them, upserting into the
// object store and distributing records into daily partition files.
package tns

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// Column names consumed from the batch header after normalization.
const (
	colObjID           = "objid"
	colNamePrefix      = "name_prefix"
	colName            = "name"
	colRA              = "ra"
	colDeclination     = "declination"
	colRedshift        = "redshift"
	colTypeID          = "typeid"
	colType            = "type"
	colReportingGroup  = "reporting_group"
	colSourceGroup     = "source_group"
	colDiscoveryDate   = "discoverydate"
	colDiscoveryMag    = "discoverymag"
	colDiscoveryFilter = "filter"
	colReporters       = "reporters"
	colTimeReceived    = "time_received"
	colInternalNames   = "internal_names"
	colDiscoveryBib    = "discovery_ads_bibcode"
	colClassBib        = "class_ads_bibcodes"
	colCreationDate    = "creationdate"
	colLastModified    = "lastmodified"
)

// catalogTimeLayout is the timestamp format used throughout the batch files.
const catalogTimeLayout = "2006-01-02 15:04:05"

// Record is one parsed batch row. Raw keeps the original CSV fields so the
// partitioner can rewrite rows without losing columns we do not model.
type Record struct {
	ObjID           int64
	NamePrefix      string
	Name            string
	RA              float64
	Declination     float64
	Redshift        *float64
	TypeID          string
	Type            string
	ReportingGroup  string
	SourceGroup     string
	DiscoveryDate   time.Time
	DiscoveryMag    *float64
	DiscoveryFilter string
	Reporters       string
	TimeReceived    *time.Time
	InternalNames   string
	DiscoveryBib    string
	ClassBib        string
	CreationDate    *time.Time
	LastModified    time.Time

	Raw []string
}

// Object converts the record into a store row with the default workflow
// flags of a freshly reported transient.
func (r *Record) Object() *datastore.TransientObject {
	return &datastore.TransientObject{
		ObjID:           r.ObjID,
		NamePrefix:      r.NamePrefix,
		Name:            r.Name,
		RA:              r.RA,
		Declination:     r.Declination,
		Redshift:        r.Redshift,
		TypeID:          r.TypeID,
		Type:            r.Type,
		ReportingGroup:  r.ReportingGroup,
		SourceGroup:     r.SourceGroup,
		DiscoveryDate:   r.DiscoveryDate,
		DiscoveryMag:    r.DiscoveryMag,
		DiscoveryFilter: r.DiscoveryFilter,
		Reporters:       r.Reporters,
		TimeReceived:    r.TimeReceived,
		InternalNames:   r.InternalNames,
		DiscoveryBib:    r.DiscoveryBib,
		ClassBib:        r.ClassBib,
		CreationDate:    r.CreationDate,
		LastModified:    r.LastModified,
		Inbox:           true,
	}
}

// Batch is one parsed batch file.
type Batch struct {
	Banner  string   // free-text date-range line preserved verbatim
	Header  []string // normalized lower-case column names
	Records []Record
	Dropped int // rows missing objid or name
}

// columnIndex maps a normalized header to field positions.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	return idx
}

// ParseBatch reads a batch file: a banner line, a quoted header row and one
// CSV row per transient. Rows missing the identity columns are dropped and
// counted, never fatal.
func ParseBatch(r io.Reader) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	banner, err := reader.Read()
	if err != nil {
		return nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Context("stage", "banner").
			Build()
	}

	rawHeader, err := reader.Read()
	if err != nil {
		return nil, errors.New(err).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Context("stage", "header").
			Build()
	}
	header := make([]string, len(rawHeader))
	for i, name := range rawHeader {
		header[i] = strings.ToLower(strings.Trim(strings.TrimSpace(name), `"`))
	}
	idx := columnIndex(header)
	if _, ok := idx[colObjID]; !ok {
		return nil, errors.Newf("batch header missing %q column", colObjID).
			Component("tns").
			Category(errors.CategoryFileParsing).
			Build()
	}

	batch := &Batch{Banner: strings.Join(banner, ","), Header: header}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(err).
				Component("tns").
				Category(errors.CategoryFileParsing).
				Context("stage", "rows").
				Build()
		}
		rec, ok := parseRow(row, idx)
		if !ok {
			batch.Dropped++
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func field(row []string, idx map[string]int, column string) string {
	i, ok := idx[column]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.Trim(strings.TrimSpace(row[i]), `"`)
	if v == "NULL" {
		return ""
	}
	return v
}

func floatField(row []string, idx map[string]int, column string) *float64 {
	v := field(row, idx, column)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func timeField(row []string, idx map[string]int, column string) *time.Time {
	v := field(row, idx, column)
	if v == "" {
		return nil
	}
	t, err := time.ParseInLocation(catalogTimeLayout, v, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// parseRow builds a Record from one CSV row. Returns false for rows that
// lack the identity or coordinate fields.
func parseRow(row []string, idx map[string]int) (Record, bool) {
	objIDStr := field(row, idx, colObjID)
	name := field(row, idx, colName)
	if objIDStr == "" || name == "" {
		return Record{}, false
	}
	objID, err := strconv.ParseInt(objIDStr, 10, 64)
	if err != nil {
		return Record{}, false
	}

	ra := floatField(row, idx, colRA)
	dec := floatField(row, idx, colDeclination)
	if ra == nil || dec == nil {
		return Record{}, false
	}

	rec := Record{
		ObjID:           objID,
		NamePrefix:      field(row, idx, colNamePrefix),
		Name:            name,
		RA:              *ra,
		Declination:     *dec,
		Redshift:        floatField(row, idx, colRedshift),
		TypeID:          field(row, idx, colTypeID),
		Type:            field(row, idx, colType),
		ReportingGroup:  field(row, idx, colReportingGroup),
		SourceGroup:     field(row, idx, colSourceGroup),
		DiscoveryMag:    floatField(row, idx, colDiscoveryMag),
		DiscoveryFilter: field(row, idx, colDiscoveryFilter),
		Reporters:       field(row, idx, colReporters),
		TimeReceived:    timeField(row, idx, colTimeReceived),
		InternalNames:   field(row, idx, colInternalNames),
		DiscoveryBib:    field(row, idx, colDiscoveryBib),
		ClassBib:        field(row, idx, colClassBib),
		CreationDate:    timeField(row, idx, colCreationDate),
		Raw:             row,
	}
	if t := timeField(row, idx, colDiscoveryDate); t != nil {
		rec.DiscoveryDate = *t
	}
	if t := timeField(row, idx, colLastModified); t != nil {
		rec.LastModified = *t
	}
	return rec, true
}
