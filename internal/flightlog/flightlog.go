// Package flightlog runs the whole pipeline: decode a log buffer and render
// it as GeoJSON.
package flightlog

import (
	"io"

	"github.com/sirupsen/logrus"

	"flightlog/internal/geojson"
	"flightlog/internal/record"
	"flightlog/internal/telemetry"
)

// Conversion is the outcome of one successful pipeline run
type Conversion struct {
	Model   *telemetry.Model
	Stats   record.Stats
	GeoJSON string
}

// Converter decodes logs and serializes them
type Converter struct {
	logger  *logrus.Logger
	decoder *record.Decoder
}

// NewConverter creates a converter. A nil logger discards output.
func NewConverter(logger *logrus.Logger) *Converter {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Converter{logger: logger, decoder: record.NewDecoder(logger)}
}

// Decode decodes buf into a telemetry model without serializing it
func (c *Converter) Decode(buf []byte, credential string) (*telemetry.Model, record.Stats, error) {
	return c.decoder.Decode(buf, credential)
}

// Convert decodes buf and renders the flight as a FeatureCollection
func (c *Converter) Convert(buf []byte, credential string) (*Conversion, error) {
	model, stats, err := c.decoder.Decode(buf, credential)
	if err != nil {
		return nil, err
	}

	text, err := geojson.Serialize(model)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"samples":     model.Len(),
		"positioned":  model.ValidSamples(),
		"records":     stats.Records,
		"diagnostics": len(model.Diagnostics()),
	}).Debug("Converted flight log")

	return &Conversion{Model: model, Stats: stats, GeoJSON: text}, nil
}

// Decode is a convenience wrapper around a converter with no logging
func Decode(buf []byte, credential string) (*Conversion, error) {
	return NewConverter(nil).Convert(buf, credential)
}
