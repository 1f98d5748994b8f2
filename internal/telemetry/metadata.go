package telemetry

import (
	"sort"
	"strings"
	"time"
)

// Field names a metadata attribute
type Field string

const (
	FieldVersion            Field = "version"
	FieldStartTime          Field = "startTime"
	FieldDuration           Field = "totalTime"
	FieldTotalDistance      Field = "totalDistance"
	FieldMaxHeight          Field = "maxHeight"
	FieldMaxHorizontalSpeed Field = "maxHorizontalSpeed"
	FieldMaxVerticalSpeed   Field = "maxVerticalSpeed"
	FieldTakeOffAltitude    Field = "takeOffAltitude"
	FieldCaptureNum         Field = "captureNum"
	FieldVideoTime          Field = "videoTime"
	FieldHome               Field = "home"
	FieldGoHomeHeight       Field = "goHomeHeight"
	FieldMaxAllowedHeight   Field = "maxAllowedHeight"
	FieldAircraftName       Field = "aircraftName"
	FieldAircraftSN         Field = "aircraftSN"
	FieldCameraSN           Field = "cameraSN"
	FieldRCSN               Field = "rcSN"
	FieldBatterySN          Field = "batterySN"
	FieldProductType        Field = "productType"
	FieldAppPlatform        Field = "appPlatform"
	FieldAppVersion         Field = "appVersion"
	FieldSubStreet          Field = "subStreet"
	FieldStreet             Field = "street"
	FieldCity               Field = "city"
	FieldArea               Field = "area"
	FieldImageCount         Field = "imageCount"

	firmwarePrefix = "firmware."
)

// FirmwareField names the firmware version field of one component
func FirmwareField(component string) Field {
	return Field(firmwarePrefix + component)
}

// HomePoint is the launch / return-to-home position
type HomePoint struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Metadata holds file-level attributes. Fields that were never observed are
// absent rather than zero.
type Metadata struct {
	fields map[Field]interface{}
}

// Get returns the raw value of a field
func (md *Metadata) Get(field Field) (interface{}, bool) {
	v, ok := md.fields[field]
	return v, ok
}

// Has reports whether a field was set
func (md *Metadata) Has(field Field) bool {
	_, ok := md.fields[field]
	return ok
}

// String returns a string field
func (md *Metadata) String(field Field) (string, bool) {
	v, ok := md.fields[field].(string)
	return v, ok
}

// Float returns a float field
func (md *Metadata) Float(field Field) (float64, bool) {
	v, ok := md.fields[field].(float64)
	return v, ok
}

// Int returns an integer field
func (md *Metadata) Int(field Field) (int64, bool) {
	v, ok := md.fields[field].(int64)
	return v, ok
}

// Version returns the format version
func (md *Metadata) Version() (uint8, bool) {
	v, ok := md.fields[FieldVersion].(uint8)
	return v, ok
}

// Home returns the home point
func (md *Metadata) Home() (HomePoint, bool) {
	v, ok := md.fields[FieldHome].(HomePoint)
	return v, ok
}

// StartTime returns the recorded start of the flight
func (md *Metadata) StartTime() (time.Time, bool) {
	v, ok := md.fields[FieldStartTime].(time.Time)
	return v, ok
}

// Duration returns the recorded flight duration
func (md *Metadata) Duration() (time.Duration, bool) {
	v, ok := md.fields[FieldDuration].(time.Duration)
	return v, ok
}

// Firmware returns the firmware versions keyed by component
func (md *Metadata) Firmware() map[string]string {
	out := make(map[string]string)
	for f, v := range md.fields {
		if s, ok := v.(string); ok && strings.HasPrefix(string(f), firmwarePrefix) {
			out[strings.TrimPrefix(string(f), firmwarePrefix)] = s
		}
	}
	return out
}

// Fields returns the names of all set fields, sorted
func (md *Metadata) Fields() []Field {
	out := make([]Field, 0, len(md.fields))
	for f := range md.fields {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of set fields
func (md *Metadata) Len() int {
	return len(md.fields)
}
