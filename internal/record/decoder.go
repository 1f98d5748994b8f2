package record

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"flightlog/internal/cursor"
	"flightlog/internal/flterr"
	"flightlog/internal/keys"
	"flightlog/internal/telemetry"
)

var jpegEndMarker = []byte{Terminator, JPEGEnd}

// Stats counts what a decode pass saw
type Stats struct {
	Records        int
	ByKind         map[Kind]int
	Unknown        int
	SkippedBytes   int
	Images         int
	DroppedSamples int
	Resyncs        int
}

// Decoder decodes flight logs into a telemetry model
type Decoder struct {
	logger *logrus.Logger
}

// NewDecoder creates a new flight log decoder
func NewDecoder(logger *logrus.Logger) *Decoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Decoder{logger: logger}
}

type state int

const (
	stateScanning state = iota // positioned at a record boundary
	stateDecoding              // body located, about to interpret fields
	stateDone
)

// run is the state of one Decode call
type run struct {
	logger *logrus.Logger
	buf    []byte
	layout Layout
	c      *cursor.Cursor
	keys   *keys.Manager
	model  *telemetry.Model
	stats  Stats

	header  Header
	index   int
	gimbal  *Gimbal
	details *Details
	err     error
}

// Decode walks every record of buf. The credential is only used when an
// encrypted record is met. Recoverable anomalies are recorded as model
// diagnostics; a fatal one aborts the decode and is returned as a
// *flterr.Error.
func (d *Decoder) Decode(buf []byte, credential string) (*telemetry.Model, Stats, error) {
	stats := Stats{ByKind: make(map[Kind]int)}
	if len(buf) == 0 {
		return nil, stats, flterr.New(flterr.KindInvalidArgument, "input buffer is empty")
	}
	if err := keys.ValidateCredential(credential); err != nil {
		return nil, stats, err
	}

	layout, err := ParseLayout(buf)
	if err != nil {
		return nil, stats, err
	}

	d.logger.WithFields(logrus.Fields{
		"version":       layout.Version,
		"size":          len(buf),
		"records_start": layout.RecordsStart,
		"records_end":   layout.RecordsEnd,
	}).Debug("Parsed log layout")

	c := cursor.New(buf[:layout.RecordsEnd])
	if err := c.Seek(layout.RecordsStart); err != nil {
		return nil, stats, err
	}

	r := &run{
		logger: d.logger,
		buf:    buf,
		layout: layout,
		c:      c,
		keys:   keys.NewManager(credential, layout.Salt, d.logger),
		model:  telemetry.New(),
		stats:  stats,
	}
	r.model.SetMetadata(telemetry.FieldVersion, layout.Version)
	r.readDetails()

	for st := stateScanning; st != stateDone; {
		switch st {
		case stateScanning:
			st = r.scan()
		case stateDecoding:
			st = r.decode()
		}
	}
	if r.err != nil {
		return nil, r.stats, r.err
	}

	r.finish()
	return r.model, r.stats, nil
}

func (r *run) readDetails() {
	l := r.layout
	if l.DetailsMissing {
		r.diag(flterr.KindTruncatedRecord, l.DetailsOffset, -1, "details block lies past the end of the buffer")
		return
	}
	if l.DetailsOffset+DetailsSize > len(r.buf) || (l.Version >= 12 && l.DetailsLength < DetailsSize) {
		r.diag(flterr.KindTruncatedRecord, l.DetailsOffset, -1, "details block is incomplete")
		return
	}
	details, err := ParseDetails(r.buf[l.DetailsOffset : l.DetailsOffset+DetailsSize])
	if err != nil {
		r.diag(flterr.KindTruncatedRecord, l.DetailsOffset, -1, err.Error())
		return
	}
	details.apply(r.model)
	r.details = details
}

// scan frames the record at the cursor
func (r *run) scan() state {
	if r.c.Remaining() == 0 {
		return stateDone
	}
	start := r.c.Offset()

	if marker, err := r.c.Peek(2); err == nil && marker[0] == Terminator && marker[1] == JPEGStart {
		return r.skipImage(start)
	}

	tag, _ := r.c.Uint8()
	var length int
	if r.layout.LengthSize() == 1 {
		v, err := r.c.Uint8()
		if err != nil {
			return r.truncated(start, "record header is cut short")
		}
		length = int(v)
	} else {
		v, err := r.c.Uint16()
		if err != nil {
			return r.truncated(start, "record header is cut short")
		}
		length = int(v)
	}

	h := Header{
		Tag:       Kind(tag),
		Offset:    start,
		Length:    length,
		Encrypted: encrypted(r.layout.Version, Kind(tag)),
	}
	if length+1 > r.c.Remaining() {
		return r.truncated(start, fmt.Sprintf("%s record declares %d bytes, %d remain", h.Tag, length, r.c.Remaining()-1))
	}

	if h.Tag.Known() {
		if r.layout.Obfuscated() && length == 0 {
			r.err = flterr.Newf(flterr.KindInvalidLayout, "%s record has an empty obfuscated body", h.Tag).
				At(start).InRecord(r.index, tag)
			return stateDone
		}
		body, _ := r.c.Peek(length + 1)
		if body[length] != Terminator {
			r.diag(flterr.KindBadTerminator, start, r.index, fmt.Sprintf("%s record is not terminated, resynchronising", h.Tag))
			return r.resync(start)
		}
	}

	r.header = h
	r.index++
	r.stats.Records++
	return stateDecoding
}

// decode interprets the body of the current record and moves past it
func (r *run) decode() state {
	h := r.header
	body, _ := r.c.Read(h.Length)
	_ = r.c.Skip(1)

	if !h.Tag.Known() {
		r.apply(&Unknown{Tag: h.Tag, Length: h.Length})
		return stateScanning
	}

	content := body
	if r.layout.Obfuscated() {
		content = Deobfuscate(h.Tag, body)
	}
	if h.Encrypted {
		plain, err := r.keys.Open(r.layout.Version, uint8(h.Tag), content)
		if err != nil {
			r.err = locate(err, h, r.index-1)
			return stateDone
		}
		content = plain
	}

	rec, err := parseBody(h.Tag, content, r.layout.Version)
	if err != nil {
		if h.Tag == KindOSD {
			r.stats.DroppedSamples++
		}
		r.diag(flterr.KindMalformedField, h.Offset, r.index-1, err.Error())
		return stateScanning
	}

	r.logger.WithFields(logrus.Fields{
		"record": r.index - 1,
		"tag":    h.Tag.String(),
		"offset": h.Offset,
		"length": h.Length,
	}).Debug("Decoded record")

	r.apply(rec)
	return stateScanning
}

func (r *run) apply(rec Record) {
	r.stats.ByKind[rec.Kind()]++

	switch v := rec.(type) {
	case *OSD:
		r.applyOSD(v)
	case *Home:
		r.applyHome(v)
	case *Gimbal:
		r.gimbal = v
	case *Recover:
		identity{
			productType:  v.ProductType,
			appPlatform:  v.AppPlatform,
			appVersion:   v.AppVersion,
			aircraftName: v.AircraftName,
			aircraftSN:   v.AircraftSN,
			cameraSN:     v.CameraSN,
			rcSN:         v.RCSN,
			batterySN:    v.BatterySN,
		}.apply(r.model)
		if v.Timestamp > 0 && !r.model.Metadata().Has(telemetry.FieldStartTime) {
			r.model.SetMetadata(telemetry.FieldStartTime, time.Unix(v.Timestamp, 0).UTC())
		}
	case *Firmware:
		r.model.SetMetadata(telemetry.FirmwareField(v.Component()), v.VersionString())
	case *Unknown:
		r.stats.Unknown++
		r.stats.SkippedBytes += v.Length + 1
	}
}

func (r *run) applyOSD(o *OSD) {
	sample, err := sampleFromOSD(o, r.gimbal)
	if err != nil {
		r.stats.DroppedSamples++
		r.diag(flterr.KindMalformedField, r.header.Offset, r.index-1, err.Error())
		return
	}
	r.model.AppendSample(sample)
}

func (r *run) applyHome(h *Home) {
	lat, lon := degrees(h.Latitude), degrees(h.Longitude)
	alt := float64(h.Altitude) / 10
	home := telemetry.Coordinate{Latitude: lat, Longitude: lon}

	switch {
	case lat == 0 && lon == 0:
		// not set by the flight controller
	case !home.Valid():
		r.diag(flterr.KindMalformedField, r.header.Offset, r.index-1,
			fmt.Sprintf("home coordinate %v,%v out of range, home point ignored", lat, lon))
	case math.IsNaN(alt) || math.IsInf(alt, 0):
		r.diag(flterr.KindMalformedField, r.header.Offset, r.index-1,
			fmt.Sprintf("home altitude %v is not finite, home point ignored", alt))
	default:
		r.model.SetMetadata(telemetry.FieldHome, telemetry.HomePoint{
			Latitude:  lat,
			Longitude: lon,
			Altitude:  alt,
		})
	}

	r.model.SetMetadata(telemetry.FieldGoHomeHeight, float64(h.GoHomeHeight))
	if h.MaxAllowedHeight != nil {
		v := float64(*h.MaxAllowedHeight)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			r.diag(flterr.KindMalformedField, r.header.Offset, r.index-1,
				fmt.Sprintf("max allowed height %v is not finite", v))
		} else {
			r.model.SetMetadata(telemetry.FieldMaxAllowedHeight, v)
		}
	}
}

// skipImage consumes an embedded JPEG starting at start
func (r *run) skipImage(start int) state {
	rest, _ := r.c.Peek(r.c.Remaining())
	end := bytes.Index(rest[2:], jpegEndMarker)
	if end < 0 {
		return r.truncated(start, "embedded image has no end marker")
	}
	size := 2 + end + len(jpegEndMarker)
	_ = r.c.Skip(size)
	r.stats.Images++
	r.stats.SkippedBytes += size

	r.logger.WithFields(logrus.Fields{
		"offset": start,
		"size":   size,
	}).Debug("Skipped embedded image")
	return stateScanning
}

// resync moves the cursor to the record boundary following the next 0xFF
// after start
func (r *run) resync(start int) state {
	r.stats.Resyncs++
	if err := r.c.Seek(start + 1); err != nil {
		return stateDone
	}
	next := r.c.IndexByte(Terminator)
	if next < 0 {
		return stateDone
	}
	if next+1 < r.layout.RecordsEnd && r.buf[next+1] == JPEGStart {
		_ = r.c.Seek(next)
	} else {
		_ = r.c.Seek(next + 1)
	}
	return stateScanning
}

func (r *run) truncated(offset int, msg string) state {
	r.diag(flterr.KindTruncatedRecord, offset, r.index, msg)
	return stateDone
}

func (r *run) diag(kind flterr.Kind, offset, record int, msg string) {
	r.model.AddDiagnostic(telemetry.Diagnostic{
		Kind:    kind,
		Offset:  offset,
		Record:  record,
		Message: msg,
	})
	r.logger.WithFields(logrus.Fields{
		"kind":   kind.String(),
		"offset": offset,
	}).Warn(msg)
}

func (r *run) finish() {
	if r.details != nil && !r.model.Metadata().Has(telemetry.FieldHome) {
		if home, ok := r.details.home(); ok {
			r.model.SetMetadata(telemetry.FieldHome, home)
		}
	}
	if r.stats.Images > 0 {
		r.model.SetMetadata(telemetry.FieldImageCount, int64(r.stats.Images))
	}

	r.logger.WithFields(logrus.Fields{
		"records":     r.stats.Records,
		"samples":     r.model.Len(),
		"unknown":     r.stats.Unknown,
		"images":      r.stats.Images,
		"diagnostics": len(r.model.Diagnostics()),
	}).Debug("Decoded flight log")
}

// locate annotates a fatal error with the record it happened in
func locate(err error, h Header, index int) error {
	var fe *flterr.Error
	if errors.As(err, &fe) {
		return fe.At(h.Offset).InRecord(index, uint8(h.Tag))
	}
	return flterr.Wrap(flterr.KindUnknown, err, "record decode failed").At(h.Offset).InRecord(index, uint8(h.Tag))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
