// Package crossmatch matches transient objects against reference
// astronomical catalogs by sky position: a coarse bounding-box query against
// the catalog store, then an exact great-circle separation cut.
package crossmatch

import (
	"math"

	"github.com/kinderlab/tnsmarshal/internal/datastore"
)

const arcsecPerDegree = 3600.0

// SearchBox returns the coordinate window queried against a catalog for a
// position and radius. The window spans the same width in RA at any
// declination. Near the poles that makes the prefilter tighter than a true
// cone; the exact separation cut below decides membership either way.
func SearchBox(ra, dec, radiusArcsec float64) datastore.Box {
	delta := radiusArcsec / arcsecPerDegree
	return datastore.Box{
		RAMin:  ra - delta,
		RAMax:  ra + delta,
		DecMin: dec - delta,
		DecMax: dec + delta,
	}
}

// Separation returns the great-circle angular separation between two sky
// positions in arcseconds, using the haversine form which is stable for
// small angles.
func Separation(ra1, dec1, ra2, dec2 float64) float64 {
	const degToRad = math.Pi / 180.0
	phi1 := dec1 * degToRad
	phi2 := dec2 * degToRad
	dPhi := (dec2 - dec1) * degToRad
	dLambda := (ra2 - ra1) * degToRad

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))
	return c / degToRad * arcsecPerDegree
}
