package app

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"flightlog/internal/flightlog"
	"flightlog/internal/output"
)

// Application represents the main application
type Application struct {
	config    Config
	logger    *logrus.Logger
	out       io.Writer
	converter *flightlog.Converter
}

// NewApplication creates a new application instance. Results go to out,
// logs go to stderr.
func NewApplication(config Config, out io.Writer) (*Application, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := config.Level()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	return &Application{
		config:    config,
		logger:    logger,
		out:       out,
		converter: flightlog.NewConverter(logger),
	}, nil
}

// Logger returns the application logger
func (app *Application) Logger() *logrus.Logger {
	return app.logger
}

// Convert decodes the log at path and writes its GeoJSON. The text goes to
// the output stream when Stdout is set, to Output when given, and otherwise
// next to the input or into OutputDir. The written path is returned, empty
// for the output stream.
func (app *Application) Convert(path string) (string, error) {
	app.logger.WithFields(logrus.Fields{
		"version": Version,
		"file":    path,
	}).Debug("Converting flight log")

	buf, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read flight log: %w", err)
	}

	conv, err := app.converter.Convert(buf, app.config.APIKey)
	if err != nil {
		return "", fmt.Errorf("failed to convert %s: %w", path, err)
	}
	app.logDiagnostics(conv)

	if app.config.Stdout {
		if _, err := io.WriteString(app.out, conv.GeoJSON+"\n"); err != nil {
			return "", fmt.Errorf("failed to write GeoJSON: %w", err)
		}
		return "", nil
	}

	writer, err := output.NewWriter(app.config.OutputDir, app.config.Gzip, app.logger)
	if err != nil {
		return "", err
	}

	written := app.config.Output
	if written != "" {
		err = writer.WriteFile(written, conv.GeoJSON)
	} else {
		written, err = writer.Write(path, conv.GeoJSON)
	}
	if err != nil {
		return "", err
	}

	app.logger.WithFields(logrus.Fields{
		"input":   path,
		"output":  written,
		"read":    humanize.Bytes(uint64(len(buf))),
		"samples": conv.Model.Len(),
	}).Info("Converted flight log")
	return written, nil
}

// Info decodes the log at path and prints a summary of the flight
func (app *Application) Info(path string) (*Summary, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flight log: %w", err)
	}

	model, stats, err := app.converter.Decode(buf, app.config.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	summary := Summarize(model, stats)
	summary.File = path
	summary.Size = int64(len(buf))

	if err := summary.Print(app.out); err != nil {
		return nil, fmt.Errorf("failed to print summary: %w", err)
	}
	return summary, nil
}

func (app *Application) logDiagnostics(conv *flightlog.Conversion) {
	for _, d := range conv.Model.Diagnostics() {
		app.logger.WithFields(logrus.Fields{
			"kind":   d.Kind.String(),
			"offset": d.Offset,
			"record": d.Record,
		}).Debug(d.Message)
	}
}
