// Package telemetry holds the decoded flight: the ordered samples, the
// file-level metadata and the diagnostics recorded while decoding.
package telemetry

import (
	"fmt"
	"math"

	"flightlog/internal/flterr"
)

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether the coordinate is finite and in range
func (c Coordinate) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Sample is one decoded telemetry observation
type Sample struct {
	Index int     // position in the model, assigned on append
	Time  float64 // seconds since the start of the log

	// Position is nil when the aircraft had no fix
	Position *Coordinate
	Altitude float64 // metres above take-off

	VelocityX float64 // m/s
	VelocityY float64
	VelocityZ float64

	Pitch float64 // degrees
	Roll  float64
	Yaw   float64

	GPSSatellites  *uint8
	GPSLevel       *uint8
	BatteryPercent *uint8
	FlightMode     *uint8
	DroneType      *uint8
	GimbalPitch    *float64
	GimbalRoll     *float64
	GimbalYaw      *float64
}

// HorizontalSpeed returns the ground speed in m/s
func (s Sample) HorizontalSpeed() float64 {
	return math.Hypot(s.VelocityX, s.VelocityY)
}

// Diagnostic is a recoverable anomaly observed while decoding
type Diagnostic struct {
	Kind    flterr.Kind
	Offset  int
	Record  int
	Message string
}

func (d Diagnostic) String() string {
	if d.Offset >= 0 {
		return fmt.Sprintf("%s at offset %d: %s", d.Kind, d.Offset, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Model accumulates samples and metadata during one decode
type Model struct {
	samples     []Sample
	metadata    Metadata
	diagnostics []Diagnostic
}

// New creates an empty model
func New() *Model {
	return &Model{metadata: Metadata{fields: make(map[Field]interface{})}}
}

// AppendSample adds a sample at the end of the flight path
func (m *Model) AppendSample(s Sample) {
	s.Index = len(m.samples)
	m.samples = append(m.samples, s)
}

// Samples returns the samples in file order. The slice must not be modified.
func (m *Model) Samples() []Sample {
	return m.samples
}

// Len returns the number of samples
func (m *Model) Len() int {
	return len(m.samples)
}

// ValidSamples returns the number of samples with a position
func (m *Model) ValidSamples() int {
	n := 0
	for i := range m.samples {
		if m.samples[i].Position != nil {
			n++
		}
	}
	return n
}

// Metadata returns the file-level metadata
func (m *Model) Metadata() *Metadata {
	return &m.metadata
}

// SetMetadata sets a metadata field. A second write with a different value
// replaces the first and records a MetadataConflict diagnostic.
func (m *Model) SetMetadata(field Field, value interface{}) {
	prev, existed := m.metadata.fields[field]
	m.metadata.fields[field] = value
	if existed && !equalValues(prev, value) {
		m.AddDiagnostic(Diagnostic{
			Kind:    flterr.KindMetadataConflict,
			Offset:  -1,
			Record:  -1,
			Message: fmt.Sprintf("%s changed from %v to %v", field, prev, value),
		})
	}
}

// AddDiagnostic records a recoverable anomaly
func (m *Model) AddDiagnostic(d Diagnostic) {
	m.diagnostics = append(m.diagnostics, d)
}

// Diagnostics returns the recorded diagnostics in order
func (m *Model) Diagnostics() []Diagnostic {
	return m.diagnostics
}

// DiagnosticsOf returns the diagnostics of one kind
func (m *Model) DiagnosticsOf(kind flterr.Kind) []Diagnostic {
	var out []Diagnostic
	for _, d := range m.diagnostics {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Metadata values are always comparable scalars or small structs
func equalValues(a, b interface{}) bool {
	return a == b
}
