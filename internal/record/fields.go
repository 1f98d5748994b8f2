package record

import (
	"fmt"

	"flightlog/internal/cursor"
	"flightlog/internal/flterr"
)

// Record is one decoded record body
type Record interface {
	Kind() Kind
}

// OSD is the periodic on-screen-display frame, one per telemetry sample
type OSD struct {
	Longitude float64 // radians
	Latitude  float64 // radians
	Height    int16   // decimetres
	SpeedX    int16   // dm/s
	SpeedY    int16
	SpeedZ    int16
	Pitch     int16 // tenths of a degree
	Roll      int16
	Yaw       int16

	FlightMode   uint8
	AppCommand   uint8
	Bitpack2     uint8
	Bitpack3     uint8
	Bitpack4     uint8
	Bitpack5     uint8
	GPSNum       uint8
	FlightAction uint8
	MotorFail    uint8
	Bitpack6     uint8
	Battery      uint8
	SWaveHeight  uint8  // decimetres
	FlyTime      uint16 // tenths of a second
	MotorRev     uint8
	VersionC     uint8

	DroneType   *uint8
	IMUInitFail *uint8
}

func (*OSD) Kind() Kind { return KindOSD }

// GPSLevel returns the GPS signal level (0-5)
func (o *OSD) GPSLevel() uint8 { return (o.Bitpack4 & 0x3C) >> 2 }

// Home is the home point record
type Home struct {
	Longitude        float64 // radians
	Latitude         float64 // radians
	Altitude         float32 // decimetres
	Bitpack1         uint8
	Bitpack2         uint8
	GoHomeHeight     uint16
	IOCAngle         int16
	SDState          uint8
	SDPercent        uint8
	SDLeftTime       uint16
	RecordIndex      uint16
	MaxAllowedHeight *float32
}

func (*Home) Kind() Kind { return KindHome }

// Gimbal carries the camera gimbal attitude
type Gimbal struct {
	Pitch int16 // tenths of a degree
	Roll  int16
	Yaw   int16
}

func (*Gimbal) Kind() Kind { return KindGimbal }

// Recover holds the device identity written when a log is recovered
type Recover struct {
	ProductType  uint8
	AppPlatform  uint8
	AppVersion   [3]uint8
	AircraftSN   string
	AircraftName string
	Timestamp    int64 // seconds since the Unix epoch
	CameraSN     string
	RCSN         string
	BatterySN    string
}

func (*Recover) Kind() Kind { return KindRecover }

// Firmware is the firmware version of one aircraft component
type Firmware struct {
	SenderType uint8
	SubSender  uint8
	Version    [4]uint8
}

func (*Firmware) Kind() Kind { return KindFirmware }

var senderNames = map[uint8]string{
	1:  "camera",
	3:  "flightController",
	4:  "gimbal",
	6:  "remoteController",
	9:  "airLink",
	11: "battery",
	12: "esc",
	14: "vision",
}

// Component names the component the version belongs to
func (f *Firmware) Component() string {
	name, ok := senderNames[f.SenderType]
	if !ok {
		name = fmt.Sprintf("sender%d", f.SenderType)
	}
	if f.SubSender != 0 {
		name = fmt.Sprintf("%s.%d", name, f.SubSender)
	}
	return name
}

// VersionString renders the version as a dotted string
func (f *Firmware) VersionString() string {
	return fmt.Sprintf("%d.%d.%d.%d", f.Version[0], f.Version[1], f.Version[2], f.Version[3])
}

// Unknown is any record the decoder does not interpret
type Unknown struct {
	Tag    Kind
	Length int
}

func (u *Unknown) Kind() Kind { return u.Tag }

// fieldReader reads consecutive fields and keeps the first error
type fieldReader struct {
	c   *cursor.Cursor
	err error
}

func (r *fieldReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	var v uint8
	v, r.err = r.c.Uint8()
	return v
}

func (r *fieldReader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	var v uint16
	v, r.err = r.c.Uint16()
	return v
}

func (r *fieldReader) i16() int16 {
	if r.err != nil {
		return 0
	}
	var v int16
	v, r.err = r.c.Int16()
	return v
}

func (r *fieldReader) i32() int32 {
	if r.err != nil {
		return 0
	}
	var v int32
	v, r.err = r.c.Int32()
	return v
}

func (r *fieldReader) i64() int64 {
	if r.err != nil {
		return 0
	}
	var v int64
	v, r.err = r.c.Int64()
	return v
}

func (r *fieldReader) f32() float32 {
	if r.err != nil {
		return 0
	}
	var v float32
	v, r.err = r.c.Float32()
	return v
}

func (r *fieldReader) f64() float64 {
	if r.err != nil {
		return 0
	}
	var v float64
	v, r.err = r.c.Float64()
	return v
}

func (r *fieldReader) str(n int) string {
	if r.err != nil {
		return ""
	}
	var v string
	v, r.err = r.c.String(n)
	return v
}

func (r *fieldReader) skip(n int) {
	if r.err == nil {
		r.err = r.c.Skip(n)
	}
}

// parseBody dispatches a de-obfuscated, decrypted record content to the
// decoder of its kind
func parseBody(tag Kind, content []byte, version uint8) (Record, error) {
	switch tag {
	case KindOSD:
		return parseOSD(content, version)
	case KindHome:
		return parseHome(content, version)
	case KindGimbal:
		return parseGimbal(content)
	case KindRecover:
		return parseRecover(content, version)
	case KindFirmware:
		return parseFirmware(content)
	default:
		return &Unknown{Tag: tag, Length: len(content)}, nil
	}
}

func tooShort(tag Kind, got, want int) error {
	return flterr.Newf(flterr.KindMalformedField, "%s content is %d bytes, need at least %d", tag, got, want)
}

func parseOSD(content []byte, version uint8) (*OSD, error) {
	if len(content) < osdSize {
		return nil, tooShort(KindOSD, len(content), osdSize)
	}
	r := &fieldReader{c: cursor.New(content)}
	o := &OSD{
		Longitude: r.f64(),
		Latitude:  r.f64(),
		Height:    r.i16(),
		SpeedX:    r.i16(),
		SpeedY:    r.i16(),
		SpeedZ:    r.i16(),
		Pitch:     r.i16(),
		Roll:      r.i16(),
		Yaw:       r.i16(),
	}
	o.FlightMode = r.u8() & 0x7F
	o.AppCommand = r.u8()
	o.Bitpack2 = r.u8()
	o.Bitpack3 = r.u8()
	o.Bitpack4 = r.u8()
	o.Bitpack5 = r.u8()
	o.GPSNum = r.u8()
	o.FlightAction = r.u8()
	o.MotorFail = r.u8()
	o.Bitpack6 = r.u8()
	o.Battery = r.u8()
	o.SWaveHeight = r.u8()
	o.FlyTime = r.u16()
	o.MotorRev = r.u8()
	r.skip(2)
	o.VersionC = r.u8()

	if version >= 2 && r.c.Remaining() > 0 {
		v := r.u8()
		o.DroneType = &v
	}
	if version >= 3 && r.c.Remaining() > 0 {
		v := r.u8()
		o.IMUInitFail = &v
	}
	return o, r.err
}

func parseHome(content []byte, version uint8) (*Home, error) {
	if len(content) < homeSize {
		return nil, tooShort(KindHome, len(content), homeSize)
	}
	r := &fieldReader{c: cursor.New(content)}
	h := &Home{
		Longitude:    r.f64(),
		Latitude:     r.f64(),
		Altitude:     r.f32(),
		Bitpack1:     r.u8(),
		Bitpack2:     r.u8(),
		GoHomeHeight: r.u16(),
		IOCAngle:     r.i16(),
		SDState:      r.u8(),
		SDPercent:    r.u8(),
		SDLeftTime:   r.u16(),
		RecordIndex:  r.u16(),
	}
	if version >= 8 && r.c.Remaining() >= 9 {
		r.skip(5)
		v := r.f32()
		h.MaxAllowedHeight = &v
	}
	return h, r.err
}

func parseGimbal(content []byte) (*Gimbal, error) {
	if len(content) < gimbalSize {
		return nil, tooShort(KindGimbal, len(content), gimbalSize)
	}
	r := &fieldReader{c: cursor.New(content)}
	g := &Gimbal{Pitch: r.i16(), Roll: r.i16(), Yaw: r.i16()}
	return g, r.err
}

// recoverSNSize returns the width of serial number fields in Recover records
func recoverSNSize(version uint8) int {
	if version <= 7 {
		return 10
	}
	return 16
}

func parseRecover(content []byte, version uint8) (*Recover, error) {
	sn := recoverSNSize(version)
	if want := 5 + 4*sn + 32 + 8; len(content) < want {
		return nil, tooShort(KindRecover, len(content), want)
	}
	r := &fieldReader{c: cursor.New(content)}
	rec := &Recover{
		ProductType: r.u8(),
		AppPlatform: r.u8(),
	}
	rec.AppVersion = [3]uint8{r.u8(), r.u8(), r.u8()}
	rec.AircraftSN = r.str(sn)
	rec.AircraftName = r.str(32)
	rec.Timestamp = r.i64()
	rec.CameraSN = r.str(sn)
	rec.RCSN = r.str(sn)
	rec.BatterySN = r.str(sn)
	return rec, r.err
}

func parseFirmware(content []byte) (*Firmware, error) {
	if len(content) < 6 {
		return nil, tooShort(KindFirmware, len(content), 6)
	}
	f := &Firmware{SenderType: content[0], SubSender: content[1]}
	copy(f.Version[:], content[2:6])
	return f, nil
}
