package record

import (
	"fmt"
	"time"

	"flightlog/internal/cursor"
	"flightlog/internal/telemetry"
)

// DetailsSize is the size of the details block
const DetailsSize = 252

// Details is the summary block written by the app when a flight ends
type Details struct {
	SubStreet string
	Street    string
	City      string
	Area      string

	IsFavorite      uint8
	IsNew           uint8
	NeedsUpload     uint8
	RecordLineCount int32
	InfoChecksum    int32

	StartTime          int64   // ms since the Unix epoch
	Longitude          float64 // degrees
	Latitude           float64 // degrees
	TotalDistance      float32
	TotalTime          int32 // ms
	MaxHeight          float32
	MaxHorizontalSpeed float32
	MaxVerticalSpeed   float32
	CaptureNum         int32
	VideoTime          int64
	TakeOffAltitude    float32

	ProductType  uint8
	AircraftName string
	AircraftSN   string
	CameraSN     string
	RCSN         string
	BatterySN    string
	AppPlatform  uint8
	AppVersion   [3]uint8
}

// ParseDetails decodes the details block at the start of block
func ParseDetails(block []byte) (*Details, error) {
	r := &fieldReader{c: cursor.New(block)}
	d := &Details{
		SubStreet: r.str(20),
		Street:    r.str(20),
		City:      r.str(20),
		Area:      r.str(20),
	}
	d.IsFavorite = r.u8()
	d.IsNew = r.u8()
	d.NeedsUpload = r.u8()
	d.RecordLineCount = r.i32()
	d.InfoChecksum = r.i32()
	d.StartTime = r.i64()
	d.Longitude = r.f64()
	d.Latitude = r.f64()
	d.TotalDistance = r.f32()
	d.TotalTime = r.i32()
	d.MaxHeight = r.f32()
	d.MaxHorizontalSpeed = r.f32()
	d.MaxVerticalSpeed = r.f32()
	d.CaptureNum = r.i32()
	d.VideoTime = r.i64()
	d.TakeOffAltitude = r.f32()
	d.ProductType = r.u8()
	d.AircraftName = r.str(32)
	d.AircraftSN = r.str(16)
	d.CameraSN = r.str(16)
	d.RCSN = r.str(16)
	d.BatterySN = r.str(16)
	d.AppPlatform = r.u8()
	d.AppVersion = [3]uint8{r.u8(), r.u8(), r.u8()}
	if r.err != nil {
		return nil, r.err
	}
	return d, nil
}

func (d *Details) apply(m *telemetry.Model) {
	setString(m, telemetry.FieldSubStreet, d.SubStreet)
	setString(m, telemetry.FieldStreet, d.Street)
	setString(m, telemetry.FieldCity, d.City)
	setString(m, telemetry.FieldArea, d.Area)

	if d.StartTime > 0 {
		m.SetMetadata(telemetry.FieldStartTime, time.UnixMilli(d.StartTime).UTC())
	}
	if d.TotalTime > 0 {
		m.SetMetadata(telemetry.FieldDuration, time.Duration(d.TotalTime)*time.Millisecond)
	}
	m.SetMetadata(telemetry.FieldTotalDistance, float64(d.TotalDistance))
	m.SetMetadata(telemetry.FieldMaxHeight, float64(d.MaxHeight))
	m.SetMetadata(telemetry.FieldMaxHorizontalSpeed, float64(d.MaxHorizontalSpeed))
	m.SetMetadata(telemetry.FieldMaxVerticalSpeed, float64(d.MaxVerticalSpeed))
	m.SetMetadata(telemetry.FieldTakeOffAltitude, float64(d.TakeOffAltitude))
	m.SetMetadata(telemetry.FieldCaptureNum, int64(d.CaptureNum))
	m.SetMetadata(telemetry.FieldVideoTime, d.VideoTime)

	identity{
		productType:  d.ProductType,
		appPlatform:  d.AppPlatform,
		appVersion:   d.AppVersion,
		aircraftName: d.AircraftName,
		aircraftSN:   d.AircraftSN,
		cameraSN:     d.CameraSN,
		rcSN:         d.RCSN,
		batterySN:    d.BatterySN,
	}.apply(m)
}

// home returns the details coordinate as a home point. It has no altitude
// and is only used when no Home record was decoded.
func (d *Details) home() (telemetry.HomePoint, bool) {
	c := telemetry.Coordinate{Latitude: d.Latitude, Longitude: d.Longitude}
	if (d.Latitude == 0 && d.Longitude == 0) || !c.Valid() {
		return telemetry.HomePoint{}, false
	}
	return telemetry.HomePoint{Latitude: d.Latitude, Longitude: d.Longitude}, true
}

// identity is the device description shared by the details block and the
// Recover record
type identity struct {
	productType  uint8
	appPlatform  uint8
	appVersion   [3]uint8
	aircraftName string
	aircraftSN   string
	cameraSN     string
	rcSN         string
	batterySN    string
}

func (id identity) apply(m *telemetry.Model) {
	if id.productType != 0 {
		m.SetMetadata(telemetry.FieldProductType, int64(id.productType))
	}
	if id.appPlatform != 0 {
		m.SetMetadata(telemetry.FieldAppPlatform, int64(id.appPlatform))
	}
	if id.appVersion != ([3]uint8{}) {
		m.SetMetadata(telemetry.FieldAppVersion,
			fmt.Sprintf("%d.%d.%d", id.appVersion[0], id.appVersion[1], id.appVersion[2]))
	}
	setString(m, telemetry.FieldAircraftName, id.aircraftName)
	setString(m, telemetry.FieldAircraftSN, id.aircraftSN)
	setString(m, telemetry.FieldCameraSN, id.cameraSN)
	setString(m, telemetry.FieldRCSN, id.rcSN)
	setString(m, telemetry.FieldBatterySN, id.batterySN)
}

func setString(m *telemetry.Model, field telemetry.Field, v string) {
	if v != "" {
		m.SetMetadata(field, v)
	}
}
