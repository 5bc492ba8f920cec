package marshal

import "math"

// Flat Lambda-CDM parameters used for distance estimates, matching the
// Planck-era values the dashboard reports.
const (
	hubbleConstant = 67.4   // km/s/Mpc
	omegaMatter    = 0.315
	speedOfLight   = 299792.458 // km/s
)

// LuminosityDistanceMpc returns the luminosity distance for a redshift in
// megaparsecs, integrating the flat Lambda-CDM expansion history with
// Simpson's rule. Accurate to well under a percent for the z < 2 range the
// catalog covers.
func LuminosityDistanceMpc(z float64) float64 {
	if z <= 0 {
		return 0
	}
	const steps = 1000
	omegaLambda := 1 - omegaMatter
	e := func(z float64) float64 {
		zp := 1 + z
		return 1 / math.Sqrt(omegaMatter*zp*zp*zp+omegaLambda)
	}

	h := z / steps
	sum := e(0) + e(z)
	for i := 1; i < steps; i++ {
		x := float64(i) * h
		if i%2 == 1 {
			sum += 4 * e(x)
		} else {
			sum += 2 * e(x)
		}
	}
	comoving := speedOfLight / hubbleConstant * sum * h / 3
	return (1 + z) * comoving
}

// AbsoluteMagnitude converts an apparent magnitude at a redshift to an
// absolute magnitude: distance modulus plus a first-order K-correction.
// Galactic extinction is not applied.
func AbsoluteMagnitude(apparentMag, z float64) float64 {
	distancePc := LuminosityDistanceMpc(z) * 1e6
	if distancePc <= 0 {
		return apparentMag
	}
	distanceModulus := 5*math.Log10(distancePc) - 5
	kCorrection := 2.5 * math.Log10(1+z)
	return apparentMag - distanceModulus - kCorrection
}
