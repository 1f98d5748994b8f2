package app

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"flightlog/internal/geojson"
	"flightlog/internal/record"
	"flightlog/internal/telemetry"
)

// Summary describes a decoded flight for the info command
type Summary struct {
	File string
	Size int64

	Version   uint8
	Aircraft  string
	StartTime time.Time
	Duration  time.Duration

	Samples     int
	Positioned  int
	Segments    int
	Distance    float64 // metres along the recorded track
	MaxAltitude float64
	MaxSpeed    float64
	Bound       orb.Bound
	HasBound    bool

	Records        int
	Unknown        int
	Images         int
	Resyncs        int
	DroppedSamples int
	Diagnostics    map[string]int
	Firmware       map[string]string
}

// Summarize extracts a summary from a decoded model
func Summarize(model *telemetry.Model, stats record.Stats) *Summary {
	md := model.Metadata()
	s := &Summary{
		Samples:        model.Len(),
		Positioned:     model.ValidSamples(),
		Records:        stats.Records,
		Unknown:        stats.Unknown,
		Images:         stats.Images,
		Resyncs:        stats.Resyncs,
		DroppedSamples: stats.DroppedSamples,
		Diagnostics:    make(map[string]int),
		Firmware:       md.Firmware(),
	}

	s.Version, _ = md.Version()
	s.Aircraft, _ = md.String(telemetry.FieldAircraftName)
	s.StartTime, _ = md.StartTime()
	s.Duration, _ = md.Duration()

	for _, d := range model.Diagnostics() {
		s.Diagnostics[d.Kind.String()]++
	}

	for i, sample := range model.Samples() {
		if i == 0 || sample.Altitude > s.MaxAltitude {
			s.MaxAltitude = sample.Altitude
		}
		if speed := sample.HorizontalSpeed(); speed > s.MaxSpeed {
			s.MaxSpeed = speed
		}
	}

	for _, run := range geojson.Segments(model.Samples()) {
		line := make(orb.LineString, 0, len(run))
		for _, sample := range run {
			line = append(line, orb.Point{sample.Position.Longitude, sample.Position.Latitude})
		}
		s.Distance += geo.LengthHaversine(line)

		if s.HasBound {
			s.Bound = s.Bound.Union(line.Bound())
		} else {
			s.Bound = line.Bound()
			s.HasBound = true
		}
		s.Segments++
	}
	return s
}

// Print writes the summary in a human readable form
func (s *Summary) Print(w io.Writer) error {
	lines := []string{
		fmt.Sprintf("File: %s (%s)", s.File, humanize.Bytes(uint64(s.Size))),
		fmt.Sprintf("Format version: %d", s.Version),
	}
	if s.Aircraft != "" {
		lines = append(lines, fmt.Sprintf("Aircraft: %s", s.Aircraft))
	}
	if !s.StartTime.IsZero() {
		lines = append(lines, fmt.Sprintf("Start: %s", s.StartTime.UTC().Format(time.RFC3339)))
	}
	if s.Duration > 0 {
		lines = append(lines, fmt.Sprintf("Duration: %s", s.Duration))
	}

	lines = append(lines,
		fmt.Sprintf("Records: %s (%d unknown, %d images, %d resyncs)",
			humanize.Comma(int64(s.Records)), s.Unknown, s.Images, s.Resyncs),
		fmt.Sprintf("Samples: %s (%d positioned, %d dropped)",
			humanize.Comma(int64(s.Samples)), s.Positioned, s.DroppedSamples),
		fmt.Sprintf("Segments: %d", s.Segments),
		fmt.Sprintf("Distance: %s m", humanize.CommafWithDigits(s.Distance, 1)),
		fmt.Sprintf("Max altitude: %.1f m", s.MaxAltitude),
		fmt.Sprintf("Max speed: %.1f m/s", s.MaxSpeed),
	)
	if s.HasBound {
		lines = append(lines, fmt.Sprintf("Bounds: [%.6f, %.6f, %.6f, %.6f]",
			s.Bound.Min.Lon(), s.Bound.Min.Lat(), s.Bound.Max.Lon(), s.Bound.Max.Lat()))
	}

	for _, name := range sortedKeys(s.Firmware) {
		lines = append(lines, fmt.Sprintf("Firmware %s: %s", name, s.Firmware[name]))
	}

	kinds := make([]string, 0, len(s.Diagnostics))
	for kind := range s.Diagnostics {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		lines = append(lines, fmt.Sprintf("Diagnostics %s: %d", kind, s.Diagnostics[kind]))
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
