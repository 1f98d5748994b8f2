package record_test

import (
	"errors"
	"io"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flightlog/internal/flterr"
	"flightlog/internal/record"
	"flightlog/internal/record/recordtest"
	"flightlog/internal/telemetry"
)

func newDecoder() *record.Decoder {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return record.NewDecoder(logger)
}

func osd(lat, lon float64, flyTime uint16) record.OSD {
	return record.OSD{
		Latitude:  recordtest.Radians(lat),
		Longitude: recordtest.Radians(lon),
		Height:    250,
		FlyTime:   flyTime,
		Battery:   87,
		GPSNum:    14,
		Bitpack3:  0x80,
		Bitpack4:  4 << 2,
	}
}

func newBuilder(version uint8) *recordtest.Builder {
	b := recordtest.New(version)
	if version >= 13 {
		b.WithCredential("secret")
	}
	return b
}

var allVersions = []uint8{1, 3, 6, 7, 8, 11, 12, 13, 14}

func TestDecoder_SampleCountMatchesOSDRecords(t *testing.T) {
	for _, version := range allVersions {
		t.Run(versionName(version), func(t *testing.T) {
			b := newBuilder(version)
			for i := 0; i < 5; i++ {
				b.OSD(osd(47+float64(i)*0.001, 8, uint16(i*10)))
				b.Gimbal(record.Gimbal{Pitch: -100})
			}

			m, stats, err := newDecoder().Decode(b.Bytes(), "secret")
			require.NoError(t, err)
			require.Equal(t, 5, m.Len())
			for i, s := range m.Samples() {
				assert.Equal(t, i, s.Index)
				assert.InDelta(t, float64(i), s.Time, 1e-9)
			}
			assert.Equal(t, 5, stats.ByKind[record.KindOSD])
			assert.Equal(t, 10, stats.Records)
			assert.Empty(t, m.Diagnostics())

			v, ok := m.Metadata().Version()
			require.True(t, ok)
			assert.Equal(t, version, v)
		})
	}
}

func TestDecoder_UnknownTagsAreSkipped(t *testing.T) {
	for _, version := range []uint8{6, 7, 12, 13} {
		t.Run(versionName(version), func(t *testing.T) {
			plain := newBuilder(version)
			noisy := newBuilder(version)
			for i := 0; i < 3; i++ {
				o := osd(10, 20+float64(i), uint16(i))
				plain.OSD(o)

				noisy.Frame(0x63, []byte{0xFF, 0x00, 0xFF, 0xD8, 0x01}, 0x00)
				noisy.OSD(o)
				noisy.Frame(0xC8, make([]byte, 40), record.Terminator)
			}

			want, _, err := newDecoder().Decode(plain.Bytes(), "secret")
			require.NoError(t, err)
			got, stats, err := newDecoder().Decode(noisy.Bytes(), "secret")
			require.NoError(t, err)

			assert.Equal(t, want.Samples(), got.Samples())
			assert.Equal(t, 6, stats.Unknown)
			assert.Equal(t, 3*(6+41), stats.SkippedBytes)
			assert.Empty(t, got.Diagnostics())
		})
	}
}

func TestDecoder_TruncationKeepsPriorSamples(t *testing.T) {
	for _, version := range []uint8{12, 13, 14} {
		t.Run(versionName(version), func(t *testing.T) {
			b := newBuilder(version)
			for i := 0; i < 3; i++ {
				b.OSD(osd(1, 2, uint16(i)))
			}
			buf := b.Bytes()

			m, _, err := newDecoder().Decode(buf[:len(buf)-5], "secret")
			require.NoError(t, err)
			assert.Equal(t, 2, m.Len())

			diags := m.DiagnosticsOf(flterr.KindTruncatedRecord)
			require.Len(t, diags, 1)
			assert.Equal(t, 2, diags[0].Record)
		})
	}
}

func TestDecoder_TruncatedHeader(t *testing.T) {
	b := newBuilder(13).OSD(osd(1, 2, 0)).Raw([]byte{byte(record.KindOSD), 0x10})

	m, _, err := newDecoder().Decode(b.Bytes(), "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.DiagnosticsOf(flterr.KindTruncatedRecord), 1)
}

func TestDecoder_Scaling(t *testing.T) {
	o := record.OSD{
		Latitude:   recordtest.Radians(47.397742),
		Longitude:  recordtest.Radians(8.545594),
		Height:     1234,
		SpeedX:     -25,
		SpeedY:     40,
		SpeedZ:     3,
		Pitch:      -123,
		Roll:       45,
		Yaw:        -1795,
		FlyTime:    615,
		FlightMode: 0x80 | 6,
		Battery:    55,
		GPSNum:     17,
		Bitpack3:   0x80,
		Bitpack4:   5 << 2,
	}
	dt := uint8(16)
	o.DroneType = &dt

	m, _, err := newDecoder().Decode(newBuilder(7).OSD(o).Bytes(), "")
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())

	s := m.Samples()[0]
	require.NotNil(t, s.Position)
	assert.InDelta(t, 47.397742, s.Position.Latitude, 1e-9)
	assert.InDelta(t, 8.545594, s.Position.Longitude, 1e-9)
	assert.InDelta(t, 123.4, s.Altitude, 1e-9)
	assert.InDelta(t, -2.5, s.VelocityX, 1e-9)
	assert.InDelta(t, 4.0, s.VelocityY, 1e-9)
	assert.InDelta(t, 0.3, s.VelocityZ, 1e-9)
	assert.InDelta(t, -12.3, s.Pitch, 1e-9)
	assert.InDelta(t, 4.5, s.Roll, 1e-9)
	assert.InDelta(t, -179.5, s.Yaw, 1e-9)
	assert.InDelta(t, 61.5, s.Time, 1e-9)
	assert.Equal(t, uint8(6), *s.FlightMode)
	assert.Equal(t, uint8(55), *s.BatteryPercent)
	assert.Equal(t, uint8(17), *s.GPSSatellites)
	assert.Equal(t, uint8(5), *s.GPSLevel)
	assert.Equal(t, uint8(16), *s.DroneType)
	assert.Nil(t, s.GimbalPitch)
}

func TestDecoder_DroneTypeAbsentBeforeVersion2(t *testing.T) {
	m, _, err := newDecoder().Decode(newBuilder(1).OSD(osd(1, 1, 0)).Bytes(), "")
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	assert.Nil(t, m.Samples()[0].DroneType)
}

func TestDecoder_ZeroCoordinatesHaveNoPosition(t *testing.T) {
	b := newBuilder(8).
		OSD(osd(0, 0, 0)).
		OSD(osd(46.1, 7.2, 1))

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())
	assert.Nil(t, m.Samples()[0].Position)
	assert.NotNil(t, m.Samples()[1].Position)
	assert.Equal(t, 1, m.ValidSamples())
}

func TestDecoder_MalformedSampleIsDropped(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(o *record.OSD)
	}{
		{name: "pitch out of range", mutate: func(o *record.OSD) { o.Pitch = 1900 }},
		{name: "roll out of range", mutate: func(o *record.OSD) { o.Roll = -1810 }},
		{name: "yaw out of range", mutate: func(o *record.OSD) { o.Yaw = 3700 }},
		{name: "battery over 100", mutate: func(o *record.OSD) { o.Battery = 150 }},
		{name: "latitude out of range", mutate: func(o *record.OSD) { o.Latitude = recordtest.Radians(95) }},
		{name: "longitude out of range", mutate: func(o *record.OSD) { o.Longitude = recordtest.Radians(-200) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := osd(1, 1, 5)
			tt.mutate(&bad)
			b := newBuilder(8).
				OSD(osd(1, 1, 0)).
				OSD(bad).
				OSD(osd(1, 1, 10))

			m, stats, err := newDecoder().Decode(b.Bytes(), "")
			require.NoError(t, err)
			require.Equal(t, 2, m.Len())
			assert.InDelta(t, 0.0, m.Samples()[0].Time, 1e-9)
			assert.InDelta(t, 1.0, m.Samples()[1].Time, 1e-9)
			assert.Equal(t, 1, stats.DroppedSamples)

			diags := m.DiagnosticsOf(flterr.KindMalformedField)
			require.Len(t, diags, 1)
			assert.Equal(t, 1, diags[0].Record)
		})
	}
}

func TestDecoder_ShortKnownRecordIsMalformed(t *testing.T) {
	b := newBuilder(6).
		Record(record.KindOSD, make([]byte, 20)).
		OSD(osd(1, 1, 0))

	m, stats, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, stats.DroppedSamples)
	assert.Len(t, m.DiagnosticsOf(flterr.KindMalformedField), 1)
}

func TestDecoder_GimbalAttachesToFollowingSamples(t *testing.T) {
	b := newBuilder(9).
		OSD(osd(1, 1, 0)).
		Gimbal(record.Gimbal{Pitch: -900, Roll: 5, Yaw: 1200}).
		OSD(osd(1, 1, 1)).
		OSD(osd(1, 1, 2))

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	require.Equal(t, 3, m.Len())

	assert.Nil(t, m.Samples()[0].GimbalPitch)
	for _, s := range m.Samples()[1:] {
		require.NotNil(t, s.GimbalPitch)
		assert.InDelta(t, -90.0, *s.GimbalPitch, 1e-9)
		assert.InDelta(t, 0.5, *s.GimbalRoll, 1e-9)
		assert.InDelta(t, 120.0, *s.GimbalYaw, 1e-9)
	}
}

func TestDecoder_Metadata(t *testing.T) {
	maxHeight := float32(120)
	b := newBuilder(13).
		WithDetails(record.Details{
			City:          "Zurich",
			StartTime:     1700000000123,
			TotalTime:     95000,
			TotalDistance: 1234.5,
			MaxHeight:     87.5,
			AircraftName:  "Mavic",
			AircraftSN:    "SN123",
			AppVersion:    [3]uint8{4, 3, 36},
			Latitude:      10,
			Longitude:     20,
		}).
		Home(record.Home{
			Latitude:         recordtest.Radians(47.5),
			Longitude:        recordtest.Radians(8.25),
			Altitude:         4125,
			GoHomeHeight:     60,
			MaxAllowedHeight: &maxHeight,
		}).
		Recover(record.Recover{
			ProductType:  63,
			AppVersion:   [3]uint8{4, 3, 36},
			AircraftSN:   "SN123",
			AircraftName: "Mavic",
			Timestamp:    1600000000,
			CameraSN:     "CAM9",
		}).
		Firmware(record.Firmware{SenderType: 1, Version: [4]uint8{1, 2, 3, 4}}).
		Firmware(record.Firmware{SenderType: 11, SubSender: 2, Version: [4]uint8{0, 9, 0, 1}}).
		OSD(osd(47.5, 8.25, 0))

	m, stats, err := newDecoder().Decode(b.Bytes(), "secret")
	require.NoError(t, err)
	md := m.Metadata()

	home, ok := md.Home()
	require.True(t, ok)
	assert.InDelta(t, 47.5, home.Latitude, 1e-9)
	assert.InDelta(t, 8.25, home.Longitude, 1e-9)
	assert.InDelta(t, 412.5, home.Altitude, 1e-6)

	start, ok := md.StartTime()
	require.True(t, ok)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), start)

	d, ok := md.Duration()
	require.True(t, ok)
	assert.Equal(t, 95*time.Second, d)

	city, _ := md.String(telemetry.FieldCity)
	assert.Equal(t, "Zurich", city)
	name, _ := md.String(telemetry.FieldAircraftName)
	assert.Equal(t, "Mavic", name)
	cam, _ := md.String(telemetry.FieldCameraSN)
	assert.Equal(t, "CAM9", cam)
	appVersion, _ := md.String(telemetry.FieldAppVersion)
	assert.Equal(t, "4.3.36", appVersion)
	product, _ := md.Int(telemetry.FieldProductType)
	assert.Equal(t, int64(63), product)
	maxAllowed, _ := md.Float(telemetry.FieldMaxAllowedHeight)
	assert.InDelta(t, 120.0, maxAllowed, 1e-9)

	assert.Equal(t, map[string]string{"camera": "1.2.3.4", "battery.2": "0.9.0.1"}, md.Firmware())
	assert.Equal(t, 2, stats.ByKind[record.KindFirmware])
	assert.Empty(t, m.Diagnostics())
}

func TestDecoder_DetailsHomeIsFallback(t *testing.T) {
	b := newBuilder(12).
		WithDetails(record.Details{Latitude: 10, Longitude: 20}).
		OSD(osd(10, 20, 0))

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	home, ok := m.Metadata().Home()
	require.True(t, ok)
	assert.Equal(t, telemetry.HomePoint{Latitude: 10, Longitude: 20}, home)
}

func TestDecoder_ConflictingHomeIsLastWriteWins(t *testing.T) {
	b := newBuilder(8).
		Home(record.Home{Latitude: recordtest.Radians(1), Longitude: recordtest.Radians(2)}).
		Home(record.Home{Latitude: recordtest.Radians(3), Longitude: recordtest.Radians(4)}).
		OSD(osd(3, 4, 0))

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	home, ok := m.Metadata().Home()
	require.True(t, ok)
	assert.InDelta(t, 3.0, home.Latitude, 1e-9)
	assert.Len(t, m.DiagnosticsOf(flterr.KindMetadataConflict), 1)
}

func TestDecoder_EmbeddedImagesAreSkipped(t *testing.T) {
	b := newBuilder(8).
		OSD(osd(1, 1, 0)).
		Image(64).
		OSD(osd(1, 1, 1)).
		Image(3)

	m, stats, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, stats.Images)
	n, ok := m.Metadata().Int(telemetry.FieldImageCount)
	require.True(t, ok)
	assert.Equal(t, int64(2), n)
}

func TestDecoder_UnterminatedImage(t *testing.T) {
	b := newBuilder(8).
		OSD(osd(1, 1, 0)).
		Raw([]byte{record.Terminator, record.JPEGStart, 1, 2, 3})

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.DiagnosticsOf(flterr.KindTruncatedRecord), 1)
}

func TestDecoder_BadTerminatorResynchronises(t *testing.T) {
	b := newBuilder(6).
		OSD(osd(1, 1, 0)).
		// gimbal declares 6 bytes but carries 7 before its terminator
		Raw([]byte{byte(record.KindGimbal), 6, 1, 0, 2, 0, 3, 0, 9, record.Terminator}).
		OSD(osd(1, 1, 1))

	m, stats, err := newDecoder().Decode(b.Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, stats.Resyncs)
	assert.Equal(t, 0, stats.ByKind[record.KindGimbal])

	diags := m.DiagnosticsOf(flterr.KindBadTerminator)
	require.Len(t, diags, 1)
	assert.Equal(t, 1, diags[0].Record)
}

func TestDecoder_EmptyObfuscatedBodyIsFatal(t *testing.T) {
	b := newBuilder(7).
		OSD(osd(1, 1, 0)).
		Frame(record.KindOSD, nil, record.Terminator)

	m, _, err := newDecoder().Decode(b.Bytes(), "")
	assert.Nil(t, m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, flterr.ErrInvalidLayout))

	var fe *flterr.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Record)
}

func TestDecoder_Credentials(t *testing.T) {
	tests := []struct {
		name       string
		version    uint8
		credential string
		wantKind   flterr.Kind
	}{
		{name: "v13 right credential", version: 13, credential: "secret"},
		{name: "v14 right credential", version: 14, credential: "secret"},
		{name: "v13 wrong credential", version: 13, credential: "nope", wantKind: flterr.KindDecryptionFailed},
		{name: "v14 wrong credential", version: 14, credential: "nope", wantKind: flterr.KindDecryptionFailed},
		{name: "v14 missing credential", version: 14, credential: "", wantKind: flterr.KindDecryptionFailed},
		{name: "malformed credential", version: 14, credential: "bad\x00key", wantKind: flterr.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newBuilder(tt.version).OSD(osd(1, 2, 0)).Bytes()

			m, _, err := newDecoder().Decode(buf, tt.credential)
			if tt.wantKind != flterr.KindUnknown {
				require.Error(t, err)
				assert.Nil(t, m)
				assert.Equal(t, tt.wantKind, flterr.KindOf(err))
				if tt.wantKind == flterr.KindDecryptionFailed {
					assert.Contains(t, strings.ToLower(err.Error()), "decryption")
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, m.Len())
		})
	}
}

func TestDecoder_CredentialIgnoredWhenUnused(t *testing.T) {
	for _, version := range []uint8{6, 12} {
		t.Run(versionName(version), func(t *testing.T) {
			buf := newBuilder(version).OSD(osd(1, 2, 0)).OSD(osd(1, 2.1, 1)).Bytes()

			without, _, err := newDecoder().Decode(buf, "")
			require.NoError(t, err)
			with, _, err := newDecoder().Decode(buf, "anything")
			require.NoError(t, err)
			assert.Equal(t, without.Samples(), with.Samples())
		})
	}
}

func TestDecoder_PlaintextTagsInEncryptedLogs(t *testing.T) {
	b := newBuilder(13).
		Record(record.KindKeyStorage, []byte{1, 2, 3, 4}).
		OSD(osd(1, 2, 0))

	m, stats, err := newDecoder().Decode(b.Bytes(), "secret")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 1, stats.Unknown)
}

func TestDecoder_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{name: "empty buffer", buf: nil, want: flterr.ErrInvalidArgument},
		{name: "short legacy prefix", buf: []byte{1, 2, 3}, want: flterr.ErrUnexpectedEnd},
		{name: "short v12 prefix", buf: append(make([]byte, 10), 12, 0, 0), want: flterr.ErrUnexpectedEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := newDecoder().Decode(tt.buf, "")
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDecoder_MissingDetails(t *testing.T) {
	m, _, err := newDecoder().Decode(newBuilder(6).WithoutDetails().OSD(osd(1, 1, 0)).Bytes(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.DiagnosticsOf(flterr.KindTruncatedRecord), 1)
}

func versionName(v uint8) string {
	return "v" + string(rune('0'+v/10)) + string(rune('0'+v%10))
}

func BenchmarkDecoder_Decode(b *testing.B) {
	builder := newBuilder(12)
	for i := 0; i < 1000; i++ {
		builder.OSD(osd(47, 8+float64(i)*1e-5, uint16(i)))
	}
	buf := builder.Bytes()
	d := newDecoder()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = d.Decode(buf, "")
	}
}

func TestDecoder_MalformedHomeIsDiagnosed(t *testing.T) {
	nan := float32(math.NaN())
	tests := []struct {
		name string
		home record.Home
	}{
		{
			name: "NaN altitude",
			home: record.Home{Latitude: recordtest.Radians(47), Longitude: recordtest.Radians(8), Altitude: nan},
		},
		{
			name: "Infinite altitude",
			home: record.Home{Latitude: recordtest.Radians(47), Longitude: recordtest.Radians(8), Altitude: float32(math.Inf(1))},
		},
		{
			name: "Latitude out of range",
			home: record.Home{Latitude: recordtest.Radians(95), Longitude: recordtest.Radians(8)},
		},
		{
			name: "NaN max allowed height",
			home: record.Home{Latitude: recordtest.Radians(47), Longitude: recordtest.Radians(8), Altitude: 100, MaxAllowedHeight: &nan},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(8).Home(tt.home).OSD(osd(47, 8, 0))

			m, _, err := newDecoder().Decode(b.Bytes(), "")
			require.NoError(t, err)
			assert.Equal(t, 1, m.Len())

			diags := m.DiagnosticsOf(flterr.KindMalformedField)
			require.Len(t, diags, 1)
			assert.Equal(t, 0, diags[0].Record)

			if home, ok := m.Metadata().Home(); ok {
				assert.False(t, math.IsNaN(home.Altitude) || math.IsInf(home.Altitude, 0))
			}
			_, hasMaxAllowed := m.Metadata().Get(telemetry.FieldMaxAllowedHeight)
			assert.False(t, hasMaxAllowed && tt.home.MaxAllowedHeight != nil)
		})
	}
}
