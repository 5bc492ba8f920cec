// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/kinderlab/tnsmarshal/internal/conf"
	"github.com/kinderlab/tnsmarshal/internal/workflow"
)

// Box is a rectangular window in equatorial coordinates (degrees) used as
// the coarse cross-match filter.
type Box struct {
	RAMin  float64
	RAMax  float64
	DecMin float64
	DecMax float64
}

// SearchFilter narrows object queries for the marshal dashboard.
type SearchFilter struct {
	Query    string       // matches name, name prefix or internal names
	Type     string       // classification; "AT" matches unclassified too
	Tag      workflow.Tag // effective workflow tag
	DateFrom string       // discovery date lower bound, YYYY-MM-DD
	DateTo   string       // discovery date upper bound, YYYY-MM-DD
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

// Interface abstracts the underlying database implementation and defines
// the operations the pipeline and the marshal dashboard need.
type Interface interface {
	Open() error
	Close() error

	// Transient objects
	LastModifiedByObjID(objIDs []int64) (map[int64]time.Time, error)
	InsertObjects(objects []*TransientObject) error
	RefreshObjects(objects []*TransientObject) error
	GetObject(name string) (*TransientObject, error)
	UpdateObjectFlags(name string, f workflow.Flags) (int64, error)
	UpdateObjectPhysical(name string, redshift, brightestAbsMag *float64) error
	SearchObjects(filter SearchFilter) ([]TransientObject, error)
	CountObjects(filter SearchFilter) (int64, error)
	TagStatistics() (map[workflow.Tag]int64, error)
	CountByType() (map[string]int64, error)
	TotalObjects() (int64, error)
	ExpiryCandidates(cutoff time.Time) ([]TransientObject, error)
	SnoozedActiveSince(cutoff time.Time) ([]TransientObject, error)

	// Cross-match results
	SaveCrossMatches(results []CrossMatchResult) (int, error)
	CrossMatchesForDate(date string) ([]CrossMatchResult, error)
	CrossMatchDates() ([]string, error)
	GetCrossMatch(matchID uint) (*CrossMatchResult, error)
	HostExists(targetName string) (bool, error)
	SetHost(matchID uint, targetName string) error
	UnsetHost(targetName string) error

	// Reference catalogs
	GalaxiesInBox(box Box) ([]DESIGalaxy, error)
	LensesInBox(table string, box Box) ([]LensCandidate, error)

	// Photometry / spectra
	SavePhotometry(points []PhotometryPoint) error
	GetPhotometry(objectName string) ([]PhotometryPoint, error)
	DeletePhotometryPoint(id uint) error
	SaveSpectrum(points []SpectrumPoint) error
	GetSpectrum(objectName, spectrumID string) ([]SpectrumPoint, error)
	SyncLastPhotometryDate(objectName string) error
	BrightestMagnitude(objectName string) (*float64, error)

	// Audit log
	StartDownloadLog(entry *DownloadLog) error
	FinishDownloadLog(id uint, status string, imported, updated, skipped int, errMsg string) error
	RecentDownloads(limit int) ([]DownloadLog, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

// New creates a store for the backend selected in the configuration.
func New(settings *conf.Settings, logger *slog.Logger) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{Logger: logger},
			Settings:  settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{Logger: logger},
			Settings:  settings,
		}
	default:
		return nil
	}
}
