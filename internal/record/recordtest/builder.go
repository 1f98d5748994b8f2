// Package recordtest builds synthetic flight logs for tests.
package recordtest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"flightlog/internal/keys"
	"flightlog/internal/record"
)

// DefaultSalt is the key salt written into encrypted logs
var DefaultSalt = []byte("flightlog-salt16")

// Builder assembles a log of a given format version
type Builder struct {
	version   uint8
	salt      []byte
	sealer    *keys.Manager
	details   record.Details
	records   []byte
	nextSeed  uint8
	noDetails bool
}

// New creates a builder for version
func New(version uint8) *Builder {
	return &Builder{version: version, salt: DefaultSalt, nextSeed: 0x5A}
}

// WithCredential sets the credential used to seal encrypted records
func (b *Builder) WithCredential(credential string) *Builder {
	b.sealer = keys.NewManager(credential, b.salt, nil)
	return b
}

// WithDetails sets the details block
func (b *Builder) WithDetails(d record.Details) *Builder {
	b.details = d
	return b
}

// WithoutDetails leaves the details block out
func (b *Builder) WithoutDetails() *Builder {
	b.noDetails = true
	return b
}

// Record frames content as a record of tag, obfuscating and sealing it as
// the version requires
func (b *Builder) Record(tag record.Kind, content []byte) *Builder {
	if b.version >= keys.FirstEncryptedVersion && tag != record.KindKeyStorage && tag != record.KindKeyStorageRecover {
		if b.sealer == nil {
			panic("recordtest: encrypted version needs WithCredential")
		}
		envelope, err := b.sealer.Seal(b.version, uint8(tag), content, rand.Reader)
		if err != nil {
			panic(fmt.Sprintf("recordtest: seal: %v", err))
		}
		content = envelope
	}

	body := content
	if b.version >= 7 {
		body = record.Obfuscate(tag, b.nextSeed, content)
		b.nextSeed += 7
	}
	return b.Frame(tag, body, record.Terminator)
}

// Frame appends a record with body written as-is and the given terminator
func (b *Builder) Frame(tag record.Kind, body []byte, terminator byte) *Builder {
	b.records = append(b.records, uint8(tag))
	if b.version <= 12 {
		if len(body) > math.MaxUint8 {
			panic(fmt.Sprintf("recordtest: body of %d bytes does not fit a version %d length", len(body), b.version))
		}
		b.records = append(b.records, uint8(len(body)))
	} else {
		b.records = binary.LittleEndian.AppendUint16(b.records, uint16(len(body)))
	}
	b.records = append(b.records, body...)
	b.records = append(b.records, terminator)
	return b
}

// Raw appends bytes to the record section
func (b *Builder) Raw(data []byte) *Builder {
	b.records = append(b.records, data...)
	return b
}

// Image appends an embedded JPEG with n payload bytes
func (b *Builder) Image(n int) *Builder {
	b.records = append(b.records, record.Terminator, record.JPEGStart)
	for i := 0; i < n; i++ {
		b.records = append(b.records, byte(i%0xF0))
	}
	b.records = append(b.records, record.Terminator, record.JPEGEnd)
	return b
}

// OSD appends an OSD record
func (b *Builder) OSD(o record.OSD) *Builder {
	return b.Record(record.KindOSD, EncodeOSD(o, b.version))
}

// Home appends a Home record
func (b *Builder) Home(h record.Home) *Builder {
	return b.Record(record.KindHome, EncodeHome(h, b.version))
}

// Gimbal appends a Gimbal record
func (b *Builder) Gimbal(g record.Gimbal) *Builder {
	return b.Record(record.KindGimbal, EncodeGimbal(g))
}

// Recover appends a Recover record
func (b *Builder) Recover(r record.Recover) *Builder {
	return b.Record(record.KindRecover, EncodeRecover(r, b.version))
}

// Firmware appends a Firmware record
func (b *Builder) Firmware(f record.Firmware) *Builder {
	return b.Record(record.KindFirmware, EncodeFirmware(f))
}

// Len returns the size of the record section written so far
func (b *Builder) Len() int {
	return len(b.records)
}

// Bytes lays out prefix, details and records
func (b *Builder) Bytes() []byte {
	prefix := make([]byte, record.PrefixSizeFor(b.version))
	prefix[10] = b.version
	if b.version >= keys.FirstEncryptedVersion {
		copy(prefix[20:36], b.salt)
	}

	var details []byte
	if !b.noDetails {
		details = EncodeDetails(b.details)
	}

	var out []byte
	if b.version >= 12 {
		binary.LittleEndian.PutUint64(prefix[0:8], uint64(len(prefix)))
		binary.LittleEndian.PutUint16(prefix[8:10], uint16(len(details)))
		out = append(out, prefix...)
		out = append(out, details...)
		out = append(out, b.records...)
		return out
	}

	detailOffset := len(prefix) + len(b.records)
	binary.LittleEndian.PutUint64(prefix[0:8], uint64(detailOffset))
	binary.LittleEndian.PutUint16(prefix[8:10], uint16(len(details)))
	out = append(out, prefix...)
	out = append(out, b.records...)
	out = append(out, details...)
	return out
}

// Radians converts degrees for OSD and Home coordinates
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

type writer struct {
	b []byte
}

func (w *writer) u8(v uint8) { w.b = append(w.b, v) }
func (w *writer) u16(v uint16) { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *writer) i16(v int16) { w.u16(uint16(v)) }
func (w *writer) i32(v int32) { w.b = binary.LittleEndian.AppendUint32(w.b, uint32(v)) }
func (w *writer) i64(v int64) { w.b = binary.LittleEndian.AppendUint64(w.b, uint64(v)) }
func (w *writer) f32(v float32) {
	w.b = binary.LittleEndian.AppendUint32(w.b, math.Float32bits(v))
}
func (w *writer) f64(v float64) {
	w.b = binary.LittleEndian.AppendUint64(w.b, math.Float64bits(v))
}
func (w *writer) str(s string, n int) {
	field := make([]byte, n)
	copy(field, s)
	w.b = append(w.b, field...)
}

// EncodeOSD writes the OSD content layout
func EncodeOSD(o record.OSD, version uint8) []byte {
	w := &writer{}
	w.f64(o.Longitude)
	w.f64(o.Latitude)
	w.i16(o.Height)
	w.i16(o.SpeedX)
	w.i16(o.SpeedY)
	w.i16(o.SpeedZ)
	w.i16(o.Pitch)
	w.i16(o.Roll)
	w.i16(o.Yaw)
	w.u8(o.FlightMode)
	w.u8(o.AppCommand)
	w.u8(o.Bitpack2)
	w.u8(o.Bitpack3)
	w.u8(o.Bitpack4)
	w.u8(o.Bitpack5)
	w.u8(o.GPSNum)
	w.u8(o.FlightAction)
	w.u8(o.MotorFail)
	w.u8(o.Bitpack6)
	w.u8(o.Battery)
	w.u8(o.SWaveHeight)
	w.u16(o.FlyTime)
	w.u8(o.MotorRev)
	w.u8(0)
	w.u8(0)
	w.u8(o.VersionC)
	if version >= 2 {
		var dt uint8
		if o.DroneType != nil {
			dt = *o.DroneType
		}
		w.u8(dt)
	}
	if version >= 3 {
		var imu uint8
		if o.IMUInitFail != nil {
			imu = *o.IMUInitFail
		}
		w.u8(imu)
	}
	return w.b
}

// EncodeHome writes the Home content layout
func EncodeHome(h record.Home, version uint8) []byte {
	w := &writer{}
	w.f64(h.Longitude)
	w.f64(h.Latitude)
	w.f32(h.Altitude)
	w.u8(h.Bitpack1)
	w.u8(h.Bitpack2)
	w.u16(h.GoHomeHeight)
	w.i16(h.IOCAngle)
	w.u8(h.SDState)
	w.u8(h.SDPercent)
	w.u16(h.SDLeftTime)
	w.u16(h.RecordIndex)
	if version >= 8 {
		w.str("", 5)
		var maxHeight float32
		if h.MaxAllowedHeight != nil {
			maxHeight = *h.MaxAllowedHeight
		}
		w.f32(maxHeight)
	}
	return w.b
}

// EncodeGimbal writes the Gimbal content layout
func EncodeGimbal(g record.Gimbal) []byte {
	w := &writer{}
	w.i16(g.Pitch)
	w.i16(g.Roll)
	w.i16(g.Yaw)
	return w.b
}

// EncodeRecover writes the Recover content layout
func EncodeRecover(r record.Recover, version uint8) []byte {
	sn := 16
	if version <= 7 {
		sn = 10
	}
	w := &writer{}
	w.u8(r.ProductType)
	w.u8(r.AppPlatform)
	w.b = append(w.b, r.AppVersion[:]...)
	w.str(r.AircraftSN, sn)
	w.str(r.AircraftName, 32)
	w.i64(r.Timestamp)
	w.str(r.CameraSN, sn)
	w.str(r.RCSN, sn)
	w.str(r.BatterySN, sn)
	return w.b
}

// EncodeFirmware writes the Firmware content layout
func EncodeFirmware(f record.Firmware) []byte {
	return append([]byte{f.SenderType, f.SubSender}, f.Version[:]...)
}

// EncodeDetails writes the details block
func EncodeDetails(d record.Details) []byte {
	w := &writer{}
	w.str(d.SubStreet, 20)
	w.str(d.Street, 20)
	w.str(d.City, 20)
	w.str(d.Area, 20)
	w.u8(d.IsFavorite)
	w.u8(d.IsNew)
	w.u8(d.NeedsUpload)
	w.i32(d.RecordLineCount)
	w.i32(d.InfoChecksum)
	w.i64(d.StartTime)
	w.f64(d.Longitude)
	w.f64(d.Latitude)
	w.f32(d.TotalDistance)
	w.i32(d.TotalTime)
	w.f32(d.MaxHeight)
	w.f32(d.MaxHorizontalSpeed)
	w.f32(d.MaxVerticalSpeed)
	w.i32(d.CaptureNum)
	w.i64(d.VideoTime)
	w.f32(d.TakeOffAltitude)
	w.u8(d.ProductType)
	w.str(d.AircraftName, 32)
	w.str(d.AircraftSN, 16)
	w.str(d.CameraSN, 16)
	w.str(d.RCSN, 16)
	w.str(d.BatterySN, 16)
	w.u8(d.AppPlatform)
	w.b = append(w.b, d.AppVersion[:]...)
	return w.b
}
