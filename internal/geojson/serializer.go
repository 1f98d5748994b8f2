// Package geojson turns a decoded flight into a GeoJSON FeatureCollection.
package geojson

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/peterstace/simplefeatures/geom"

	"flightlog/internal/flterr"
	"flightlog/internal/telemetry"
)

// Property names of every feature
const (
	PropSegment     = "segment"
	PropSampleStart = "sampleStart"
	PropSampleCount = "sampleCount"
	PropDistance    = "distance"
	PropBBox        = "bbox"
	PropMetadata    = "metadata"

	PropTime      = "time"
	PropAltitude  = "altitude"
	PropVelocityX = "velocityX"
	PropVelocityY = "velocityY"
	PropVelocityZ = "velocityZ"
	PropPitch     = "pitch"
	PropRoll      = "roll"
	PropYaw       = "yaw"
	PropSpeed     = "speed"

	// Optional per-sample values, null where a sample has none
	PropGPSSatellites = "gpsSatellites"
	PropGPSLevel      = "gpsLevel"
	PropBattery       = "battery"
	PropFlightMode    = "flightMode"
	PropDroneType     = "droneType"
	PropGimbalPitch   = "gimbalPitch"
	PropGimbalRoll    = "gimbalRoll"
	PropGimbalYaw     = "gimbalYaw"
)

// segment is a run of consecutive samples that all have a position
type segment []telemetry.Sample

// Segments splits the samples at every sample without a position
func Segments(samples []telemetry.Sample) [][]telemetry.Sample {
	var out [][]telemetry.Sample
	start := -1
	for i, s := range samples {
		switch {
		case s.Position != nil && start < 0:
			start = i
		case s.Position == nil && start >= 0:
			out = append(out, samples[start:i])
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, samples[start:])
	}
	return out
}

// Build converts the model into features, one per segment. The first
// feature carries the flight metadata.
func Build(m *telemetry.Model) (geom.GeoJSONFeatureCollection, error) {
	if m == nil {
		return nil, flterr.New(flterr.KindInvalidArgument, "no telemetry model")
	}
	runs := Segments(m.Samples())
	if len(runs) == 0 {
		return nil, flterr.Newf(flterr.KindEmptyModel, "none of %d samples has a position", m.Len())
	}

	fc := make(geom.GeoJSONFeatureCollection, 0, len(runs))
	for i, run := range runs {
		f := segment(run).feature(i)
		if i == 0 {
			f.Properties[PropMetadata] = MetadataProperties(m.Metadata())
		}
		fc = append(fc, f)
	}
	return fc, nil
}

// Serialize renders the model as GeoJSON text
func Serialize(m *telemetry.Model) (string, error) {
	fc, err := Build(m)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(fc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal feature collection: %w", err)
	}
	return string(out), nil
}

func (s segment) feature(index int) geom.GeoJSONFeature {
	n := len(s)
	coords := make([]float64, 0, 3*n)
	path := make(orb.LineString, 0, n)

	times := make([]float64, n)
	altitudes := make([]float64, n)
	vx := make([]float64, n)
	vy := make([]float64, n)
	vz := make([]float64, n)
	pitch := make([]float64, n)
	roll := make([]float64, n)
	yaw := make([]float64, n)
	speed := make([]float64, n)

	satellites := make([]*uint8, n)
	gpsLevel := make([]*uint8, n)
	battery := make([]*uint8, n)
	mode := make([]*uint8, n)
	droneType := make([]*uint8, n)
	gimbalPitch := make([]*float64, n)
	gimbalRoll := make([]*float64, n)
	gimbalYaw := make([]*float64, n)

	for i, smp := range s {
		lon, lat := smp.Position.Longitude, smp.Position.Latitude
		coords = append(coords, lon, lat, smp.Altitude)
		path = append(path, orb.Point{lon, lat})

		times[i] = smp.Time
		altitudes[i] = smp.Altitude
		vx[i] = smp.VelocityX
		vy[i] = smp.VelocityY
		vz[i] = smp.VelocityZ
		pitch[i] = smp.Pitch
		roll[i] = smp.Roll
		yaw[i] = smp.Yaw
		speed[i] = smp.HorizontalSpeed()

		satellites[i] = smp.GPSSatellites
		gpsLevel[i] = smp.GPSLevel
		battery[i] = smp.BatteryPercent
		mode[i] = smp.FlightMode
		droneType[i] = smp.DroneType
		gimbalPitch[i] = finite(smp.GimbalPitch)
		gimbalRoll[i] = finite(smp.GimbalRoll)
		gimbalYaw[i] = finite(smp.GimbalYaw)
	}

	var g geom.Geometry
	if n == 1 {
		g = geom.NewPoint(geom.Coordinates{
			XY:   geom.XY{X: coords[0], Y: coords[1]},
			Z:    coords[2],
			Type: geom.DimXYZ,
		}).AsGeometry()
	} else {
		g = geom.NewLineString(geom.NewSequence(coords, geom.DimXYZ)).AsGeometry()
	}

	bound := path.Bound()
	return geom.GeoJSONFeature{
		Geometry: g,
		Properties: map[string]interface{}{
			PropSegment:     index,
			PropSampleStart: s[0].Index,
			PropSampleCount: n,
			PropDistance:    geo.LengthHaversine(path),
			PropBBox:        []float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
			PropTime:        times,
			PropAltitude:    altitudes,
			PropVelocityX:   vx,
			PropVelocityY:   vy,
			PropVelocityZ:   vz,
			PropPitch:       pitch,
			PropRoll:        roll,
			PropYaw:         yaw,
			PropSpeed:       speed,

			PropGPSSatellites: satellites,
			PropGPSLevel:      gpsLevel,
			PropBattery:       battery,
			PropFlightMode:    mode,
			PropDroneType:     droneType,
			PropGimbalPitch:   gimbalPitch,
			PropGimbalRoll:    gimbalRoll,
			PropGimbalYaw:     gimbalYaw,
		},
	}
}

// MetadataProperties renders metadata as JSON-friendly values
func MetadataProperties(md *telemetry.Metadata) map[string]interface{} {
	out := make(map[string]interface{}, md.Len())
	for _, field := range md.Fields() {
		v, _ := md.Get(field)
		switch val := v.(type) {
		case time.Time:
			out[string(field)] = val.Format(time.RFC3339Nano)
		case time.Duration:
			out[string(field)] = val.Seconds()
		case telemetry.HomePoint:
			if isFinite(val.Longitude) && isFinite(val.Latitude) && isFinite(val.Altitude) {
				out[string(field)] = []float64{val.Longitude, val.Latitude, val.Altitude}
			}
		case uint8:
			out[string(field)] = int(val)
		case float64:
			if isFinite(val) {
				out[string(field)] = val
			}
		default:
			out[string(field)] = val
		}
	}
	return out
}

// JSON has no NaN or infinity
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finite(v *float64) *float64 {
	if v == nil || !isFinite(*v) {
		return nil
	}
	return v
}
