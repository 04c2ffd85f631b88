// Package geofence is a pure function evaluating whether a worker-reported
// location falls within a job site's effective radius. It has no side
// effects and no dependency on the datastore.
package geofence

import "math"

// earthRadiusMeters is the mean Earth radius used for the haversine formula.
const earthRadiusMeters = 6371000.0

// defaultAccuracyM is substituted when the caller does not report GPS
// accuracy.
const defaultAccuracyM = 15.0

// maxAccuracyCreditM caps how much reported accuracy can widen the
// effective radius.
const maxAccuracyCreditM = 50.0

// lowAccuracyThresholdM is the accuracy above which a reading is tagged for
// review even though it is still evaluated normally.
const lowAccuracyThresholdM = 100.0

// Result is the outcome of evaluating a worker location against a job site.
type Result struct {
	Inside            bool
	DistanceM         float64
	EffectiveRadiusM  float64
	GPSMissing        bool
	LowAccuracy       bool
}

// Evaluate computes the great-circle distance between the worker and the
// job site and compares it against the job's radius widened by the
// worker's reported GPS accuracy (capped at 50m). Missing coordinates are
// reported as outside with GPSMissing set; the caller maps that to the
// gps_missing exception tag rather than the haversine math running on zero
// values.
func Evaluate(workerLat, workerLng float64, workerAccuracyM *float64, jobLat, jobLng, jobRadiusM float64, coordsPresent bool) Result {
	if !coordsPresent {
		return Result{Inside: false, GPSMissing: true, EffectiveRadiusM: jobRadiusM + defaultAccuracyM}
	}

	accuracy := defaultAccuracyM
	if workerAccuracyM != nil {
		accuracy = *workerAccuracyM
	}
	credit := accuracy
	if credit > maxAccuracyCreditM {
		credit = maxAccuracyCreditM
	}
	if credit < 0 {
		credit = 0
	}

	effectiveRadius := jobRadiusM + credit
	distance := HaversineMeters(workerLat, workerLng, jobLat, jobLng)

	return Result{
		Inside:           distance <= effectiveRadius,
		DistanceM:        distance,
		EffectiveRadiusM: effectiveRadius,
		LowAccuracy:      accuracy > lowAccuracyThresholdM,
	}
}

// HaversineMeters returns the great-circle distance in meters between two
// lat/lng points. It is symmetric and non-negative, and correct near the
// poles and across the antimeridian because it operates on the central
// angle rather than planar coordinate differences.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := degToRad(lat1)
	phi2 := degToRad(lat2)
	dPhi := degToRad(lat2 - lat1)
	dLambda := degToRad(lng2 - lng1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	d := earthRadiusMeters * c
	if d < 0 {
		return 0
	}
	return d
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
