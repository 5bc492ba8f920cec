// model.go this code defines the data model for the application
package datastore

import (
	"time"

	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// TransientObject represents one reported transient, keyed by the
// external-catalog object id. Catalog-provided fields are refreshed by the
// importer; workflow flags belong to the operator and the expiry scheduler
// and are never overwritten by a catalog refresh.
type TransientObject struct {
	ID         uint  `gorm:"primaryKey"`
	ObjID      int64 `gorm:"uniqueIndex;not null"`
	NamePrefix string
	Name       string `gorm:"uniqueIndex;not null"`

	RA          float64 `gorm:"index:idx_objects_coords"`
	Declination float64 `gorm:"index:idx_objects_coords"`

	Redshift        *float64
	TypeID          string
	Type            string `gorm:"index"`
	ReportingGroup  string
	SourceGroup     string
	DiscoveryDate   time.Time `gorm:"index"`
	DiscoveryMag    *float64
	DiscoveryFilter string
	Reporters       string `gorm:"type:text"`
	TimeReceived    *time.Time
	InternalNames   string `gorm:"type:text"`
	DiscoveryBib    string
	ClassBib        string

	// Workflow flags, see the workflow package for legal combinations.
	Inbox        bool `gorm:"index;default:true"`
	Snoozed      bool `gorm:"index;default:false"`
	Follow       bool `gorm:"default:false"`
	FinishFollow bool `gorm:"default:false"`

	// Derived values cached for the dashboard.
	LastPhotometryDate *time.Time
	BrightestMag       *float64
	BrightestAbsMag    *float64

	// External versioning: upserts are resolved by LastModified.
	LastModified time.Time `gorm:"index"`
	CreationDate *time.Time

	ImportedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	UpdateCount int       `gorm:"default:0"`
}

// Flags returns the workflow flag state of the object.
func (o *TransientObject) Flags() workflow.Flags {
	return workflow.Flags{
		Inbox:        o.Inbox,
		Snoozed:      o.Snoozed,
		Follow:       o.Follow,
		FinishFollow: o.FinishFollow,
	}
}

// SetFlags stores a workflow flag state on the object.
func (o *TransientObject) SetFlags(f workflow.Flags) {
	o.Inbox = f.Inbox
	o.Snoozed = f.Snoozed
	o.Follow = f.Follow
	o.FinishFollow = f.FinishFollow
}

// FullName returns the display name, prefix included (for example "SN 2025abc").
func (o *TransientObject) FullName() string {
	if o.NamePrefix == "" {
		return o.Name
	}
	return o.NamePrefix + " " + o.Name
}

// CrossMatchResult is one (target object, catalog match) pair produced by a
// cross-match run. Rows persist across runs; IsHost is the only field the
// operator mutates.
type CrossMatchResult struct {
	ID               uint   `gorm:"primaryKey"`
	TargetName       string `gorm:"index:idx_xmatch_target;not null"`
	CatalogName      string `gorm:"index:idx_xmatch_target"`
	MatchData        string `gorm:"type:text"` // catalog-specific fields, JSON
	SeparationArcsec float64
	IsHost           bool      `gorm:"default:false"`
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

// PhotometryPoint is a single photometric measurement of an object.
// Append-only; Delete soft-deletes by id.
type PhotometryPoint struct {
	ID             uint   `gorm:"primaryKey"`
	ObjectName     string `gorm:"index;not null"`
	MJD            float64
	Magnitude      *float64
	MagnitudeError *float64
	Filter         string
	Telescope      string
	LimitingMag    *float64
	CreatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// SpectrumPoint is a single point of a spectrum, grouped by SpectrumID.
type SpectrumPoint struct {
	ID         uint   `gorm:"primaryKey"`
	ObjectName string `gorm:"index;not null"`
	SpectrumID string `gorm:"index"`
	Wavelength float64
	Intensity  float64
	ObservedAt *time.Time
	CreatedAt  time.Time
	DeletedAt  gorm.DeletedAt `gorm:"index"`
}

// Download log status values.
const (
	DownloadInProgress = "in_progress"
	DownloadCompleted  = "completed"
	DownloadFailed     = "failed"
)

// DownloadLog is an append-only audit row for each fetch+import attempt and
// each expiry run.
type DownloadLog struct {
	ID              uint   `gorm:"primaryKey"`
	RunID           string `gorm:"index"` // correlation UUID for one pipeline run
	DownloadTime    time.Time
	HourUTC         int
	Filename        string
	RecordsImported int `gorm:"default:0"`
	RecordsUpdated  int `gorm:"default:0"`
	RecordsSkipped  int `gorm:"default:0"`
	Status          string
	ErrorMessage    string
	CompletedAt     *time.Time
	CreatedAt       time.Time
}

// DESIGalaxy is one reference-catalog galaxy used for host cross-matching.
type DESIGalaxy struct {
	ID       uint    `gorm:"primaryKey"`
	TargetID int64   `gorm:"index"`
	RA       float64 `gorm:"index:idx_desi_coords"`
	Dec      float64 `gorm:"column:dec;index:idx_desi_coords"`
	Z        *float64
	ZErr     *float64
	SpecType string
}

// LensCandidate is one known gravitational lens (or lens candidate). Two
// independent lens catalogs share this schema under different table names.
type LensCandidate struct {
	ID      uint    `gorm:"primaryKey"`
	Name    string  `gorm:"index"`
	RA      float64 `gorm:"index:idx_lens_coords"`
	Dec     float64 `gorm:"column:dec;index:idx_lens_coords"`
	ZSource *float64
	ZLens   *float64
	Grade   string
}

// Lens catalog table names; both hold LensCandidate rows.
const (
	TableLensHsu  = "lens_hsu"
	TableLensKarp = "lens_karp"
)
