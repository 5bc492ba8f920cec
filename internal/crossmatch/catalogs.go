package crossmatch

import (
	"encoding/json"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
	"github.com/kinderlab/tnsmarshal/internal/errors"
)

// Candidate is one catalog row eligible for matching: a sky position plus
// an opaque payload stored alongside the match for the operator to inspect.
type Candidate interface {
	Position() (ra, dec float64)
	Payload() (string, error)
}

// Catalog is one reference catalog the engine matches against.
type Catalog interface {
	Name() string
	RadiusArcsec() float64
	CandidatesInBox(box datastore.Box) ([]Candidate, error)
}

// galaxyCandidate adapts a DESI galaxy row.
type galaxyCandidate struct {
	galaxy datastore.DESIGalaxy
}

func (c galaxyCandidate) Position() (float64, float64) {
	return c.galaxy.RA, c.galaxy.Dec
}

func (c galaxyCandidate) Payload() (string, error) {
	data, err := json.Marshal(map[string]any{
		"targetid": c.galaxy.TargetID,
		"ra":       c.galaxy.RA,
		"dec":      c.galaxy.Dec,
		"z":        c.galaxy.Z,
		"zerr":     c.galaxy.ZErr,
		"spectype": c.galaxy.SpecType,
	})
	if err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryCatalog).
			Context("catalog", "desi").
			Build()
	}
	return string(data), nil
}

// DESICatalog matches against the DESI galaxy table.
type DESICatalog struct {
	Store  datastore.Interface
	Radius float64
}

func (c *DESICatalog) Name() string          { return "desi" }
func (c *DESICatalog) RadiusArcsec() float64 { return c.Radius }

func (c *DESICatalog) CandidatesInBox(box datastore.Box) ([]Candidate, error) {
	galaxies, err := c.Store.GalaxiesInBox(box)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(galaxies))
	for i := range galaxies {
		candidates = append(candidates, galaxyCandidate{galaxy: galaxies[i]})
	}
	return candidates, nil
}

// lensCandidate adapts a gravitational-lens candidate row.
type lensCandidate struct {
	lens datastore.LensCandidate
}

func (c lensCandidate) Position() (float64, float64) {
	return c.lens.RA, c.lens.Dec
}

func (c lensCandidate) Payload() (string, error) {
	data, err := json.Marshal(map[string]any{
		"name":     c.lens.Name,
		"ra":       c.lens.RA,
		"dec":      c.lens.Dec,
		"z_source": c.lens.ZSource,
		"z_lens":   c.lens.ZLens,
		"grade":    c.lens.Grade,
	})
	if err != nil {
		return "", errors.New(err).
			Component("crossmatch").
			Category(errors.CategoryCatalog).
			Context("catalog", "lens").
			Build()
	}
	return string(data), nil
}

// LensCatalog matches against one of the lens candidate tables.
type LensCatalog struct {
	Store  datastore.Interface
	Table  string
	Radius float64
}

func (c *LensCatalog) Name() string          { return c.Table }
func (c *LensCatalog) RadiusArcsec() float64 { return c.Radius }

func (c *LensCatalog) CandidatesInBox(box datastore.Box) ([]Candidate, error) {
	lenses, err := c.Store.LensesInBox(c.Table, box)
	if err != nil {
		return nil, err
	}
	candidates := make([]Candidate, 0, len(lenses))
	for i := range lenses {
		candidates = append(candidates, lensCandidate{lens: lenses[i]})
	}
	return candidates, nil
}

// DefaultCatalogs builds the production catalog set: the DESI galaxy table
// and both lens candidate tables.
func DefaultCatalogs(store datastore.Interface, desiRadius, lensRadius float64) []Catalog {
	return []Catalog{
		&DESICatalog{Store: store, Radius: desiRadius},
		&LensCatalog{Store: store, Table: datastore.TableLensHsu, Radius: lensRadius},
		&LensCatalog{Store: store, Table: datastore.TableLensKarp, Radius: lensRadius},
	}
}
