package geojson

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightlog/internal/flterr"
	"flightlog/internal/telemetry"
)

func at(lat, lon, alt float64) telemetry.Sample {
	return telemetry.Sample{Position: &telemetry.Coordinate{Latitude: lat, Longitude: lon}, Altitude: alt}
}

func noFix() telemetry.Sample {
	return telemetry.Sample{}
}

func modelOf(samples ...telemetry.Sample) *telemetry.Model {
	m := telemetry.New()
	for i, s := range samples {
		s.Time = float64(i)
		m.AppendSample(s)
	}
	return m
}

type featureJSON struct {
	Type     string `json:"type"`
	Geometry struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type collectionJSON struct {
	Type     string        `json:"type"`
	Features []featureJSON `json:"features"`
}

func decode(t *testing.T, text string) collectionJSON {
	t.Helper()
	var fc collectionJSON
	require.NoError(t, json.Unmarshal([]byte(text), &fc))
	require.Equal(t, "FeatureCollection", fc.Type)
	return fc
}

func TestSerialize_EmptyModel(t *testing.T) {
	tests := []struct {
		name  string
		model *telemetry.Model
	}{
		{name: "no samples", model: telemetry.New()},
		{name: "no sample has a fix", model: modelOf(noFix(), noFix())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Serialize(tt.model)
			require.Error(t, err)
			assert.True(t, errors.Is(err, flterr.ErrEmptyModel))
		})
	}
}

func TestSerialize_NilModel(t *testing.T) {
	_, err := Serialize(nil)
	assert.True(t, errors.Is(err, flterr.ErrInvalidArgument))
}

func TestSerialize_SingleSample(t *testing.T) {
	text, err := Serialize(modelOf(at(47.25, 8.5, 12.3)))
	require.NoError(t, err)

	fc := decode(t, text)
	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "Point", f.Geometry.Type)

	var coords []float64
	require.NoError(t, json.Unmarshal(f.Geometry.Coordinates, &coords))
	require.Len(t, coords, 3)
	assert.InDelta(t, 8.5, coords[0], 1e-12)
	assert.InDelta(t, 47.25, coords[1], 1e-12)
	assert.InDelta(t, 12.3, coords[2], 1e-12)
	assert.Equal(t, float64(1), f.Properties[PropSampleCount])
}

func TestSerialize_AxisOrderIsLonLat(t *testing.T) {
	text, err := Serialize(modelOf(at(10, 20, 1), at(11, 21, 2)))
	require.NoError(t, err)

	fc := decode(t, text)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)

	var coords [][]float64
	require.NoError(t, json.Unmarshal(fc.Features[0].Geometry.Coordinates, &coords))
	assert.Equal(t, [][]float64{{20, 10, 1}, {21, 11, 2}}, coords)
}

func TestBuild_SegmentsBreakAtMissingFix(t *testing.T) {
	m := modelOf(
		at(1, 1, 0), at(1, 2, 0),
		noFix(),
		at(2, 1, 0), at(2, 2, 0), at(2, 3, 0),
		noFix(), noFix(),
		at(3, 3, 0),
	)

	fc, err := Build(m)
	require.NoError(t, err)
	require.Len(t, fc, 3)

	tests := []struct {
		geomType geom.GeometryType
		start    int
		count    int
	}{
		{geomType: geom.TypeLineString, start: 0, count: 2},
		{geomType: geom.TypeLineString, start: 3, count: 3},
		{geomType: geom.TypePoint, start: 8, count: 1},
	}
	for i, tt := range tests {
		assert.Equal(t, tt.geomType, fc[i].Geometry.Type(), "feature %d", i)
		assert.Equal(t, i, fc[i].Properties[PropSegment])
		assert.Equal(t, tt.start, fc[i].Properties[PropSampleStart])
		assert.Equal(t, tt.count, fc[i].Properties[PropSampleCount])
		assert.Len(t, fc[i].Properties[PropTime], tt.count)
	}

	_, hasMetadata := fc[0].Properties[PropMetadata]
	assert.True(t, hasMetadata)
	_, hasMetadata = fc[1].Properties[PropMetadata]
	assert.False(t, hasMetadata)
}

func TestBuild_PropertiesAlignWithPoints(t *testing.T) {
	a := at(1, 1, 10)
	a.VelocityX, a.VelocityY, a.VelocityZ = 3, 4, -1
	a.Pitch, a.Roll, a.Yaw = 1, 2, 3
	b := at(1, 2, 20)
	b.Yaw = -90

	fc, err := Build(modelOf(a, b))
	require.NoError(t, err)
	props := fc[0].Properties

	assert.Equal(t, []float64{0, 1}, props[PropTime])
	assert.Equal(t, []float64{10, 20}, props[PropAltitude])
	assert.Equal(t, []float64{3, 0}, props[PropVelocityX])
	assert.Equal(t, []float64{4, 0}, props[PropVelocityY])
	assert.Equal(t, []float64{-1, 0}, props[PropVelocityZ])
	assert.Equal(t, []float64{1, 0}, props[PropPitch])
	assert.Equal(t, []float64{2, 0}, props[PropRoll])
	assert.Equal(t, []float64{3, -90}, props[PropYaw])
	assert.Equal(t, []float64{5, 0}, props[PropSpeed])
	assert.Equal(t, []float64{1, 1, 2, 1}, props[PropBBox])
}

func TestBuild_Distance(t *testing.T) {
	fc, err := Build(modelOf(at(0, 10, 0), at(1, 10, 0)))
	require.NoError(t, err)

	// one degree of latitude on the orb sphere
	want := 6378137.0 * math.Pi / 180
	assert.InDelta(t, want, fc[0].Properties[PropDistance], 1e-6)
}

func TestMetadataProperties(t *testing.T) {
	m := modelOf(at(1, 1, 0))
	m.SetMetadata(telemetry.FieldVersion, uint8(13))
	m.SetMetadata(telemetry.FieldStartTime, time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC))
	m.SetMetadata(telemetry.FieldDuration, 90*time.Second)
	m.SetMetadata(telemetry.FieldHome, telemetry.HomePoint{Latitude: 1, Longitude: 2, Altitude: 3})
	m.SetMetadata(telemetry.FieldAircraftName, "Mavic")

	text, err := Serialize(m)
	require.NoError(t, err)
	fc := decode(t, text)

	md, ok := fc.Features[0].Properties[PropMetadata].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(13), md["version"])
	assert.Equal(t, "2023-05-01T12:00:00Z", md["startTime"])
	assert.Equal(t, float64(90), md["totalTime"])
	assert.Equal(t, []interface{}{float64(2), float64(1), float64(3)}, md["home"])
	assert.Equal(t, "Mavic", md["aircraftName"])
}

func TestMetadataProperties_NonFiniteFloatsOmitted(t *testing.T) {
	m := modelOf(at(1, 1, 0))
	m.SetMetadata(telemetry.FieldMaxHeight, math.NaN())
	m.SetMetadata(telemetry.FieldTotalDistance, 12.5)

	text, err := Serialize(m)
	require.NoError(t, err)
	md := decode(t, text).Features[0].Properties[PropMetadata].(map[string]interface{})
	assert.NotContains(t, md, "maxHeight")
	assert.Equal(t, 12.5, md["totalDistance"])
}

func TestSegments(t *testing.T) {
	assert.Empty(t, Segments(nil))
	assert.Len(t, Segments([]telemetry.Sample{noFix(), at(1, 1, 0), noFix()}), 1)
}

func BenchmarkSerialize(b *testing.B) {
	m := telemetry.New()
	for i := 0; i < 1000; i++ {
		m.AppendSample(at(47+float64(i)*1e-5, 8, float64(i)))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Serialize(m)
	}
}

func TestMetadataProperties_NonFiniteHomeOmitted(t *testing.T) {
	m := modelOf(at(1, 1, 0))
	m.SetMetadata(telemetry.FieldHome, telemetry.HomePoint{Latitude: 1, Longitude: 2, Altitude: math.Inf(-1)})

	text, err := Serialize(m)
	require.NoError(t, err)
	md := decode(t, text).Features[0].Properties[PropMetadata].(map[string]interface{})
	assert.NotContains(t, md, "home")
}

func TestSerialize_OptionalValuesAlignWithPoints(t *testing.T) {
	sats, level, battery, mode := uint8(12), uint8(4), uint8(76), uint8(6)
	gimbalPitch, gimbalYaw := -45.5, 10.0

	a := at(1, 1, 10)
	a.GPSSatellites, a.GPSLevel, a.BatteryPercent, a.FlightMode = &sats, &level, &battery, &mode
	a.GimbalPitch, a.GimbalYaw = &gimbalPitch, &gimbalYaw
	b := at(1, 2, 20)
	b.BatteryPercent = &battery

	text, err := Serialize(modelOf(a, b))
	require.NoError(t, err)
	props := decode(t, text).Features[0].Properties

	tests := []struct {
		prop     string
		expected []interface{}
	}{
		{PropGPSSatellites, []interface{}{float64(12), nil}},
		{PropGPSLevel, []interface{}{float64(4), nil}},
		{PropBattery, []interface{}{float64(76), float64(76)}},
		{PropFlightMode, []interface{}{float64(6), nil}},
		{PropDroneType, []interface{}{nil, nil}},
		{PropGimbalPitch, []interface{}{-45.5, nil}},
		{PropGimbalRoll, []interface{}{nil, nil}},
		{PropGimbalYaw, []interface{}{float64(10), nil}},
	}

	for _, tt := range tests {
		t.Run(tt.prop, func(t *testing.T) {
			assert.Equal(t, tt.expected, props[tt.prop])
		})
	}
}
