// Package bridge adapts the pipeline to callers that fetch results and
// errors after the call returns and release what they were handed.
package bridge

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"flightlog/internal/flightlog"
	"flightlog/internal/flterr"
	"flightlog/internal/output"
	"flightlog/internal/telemetry"
)

// Handle identifies a text artifact owned by a Context until released
type Handle uint64

// NoHandle is returned when no artifact was produced
const NoHandle Handle = 0

// Result is the outcome of one invocation
type Result struct {
	Text        string
	Path        string
	Handle      Handle
	Diagnostics []telemetry.Diagnostic
	Err         error
}

// OK reports whether the invocation succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Context holds the last error and the outstanding artifacts of one caller.
// Contexts share nothing, so a failure in one never clobbers another.
type Context struct {
	id        uuid.UUID
	logger    *logrus.Logger
	converter *flightlog.Converter

	mu      sync.Mutex
	lastErr *string
	handles map[Handle]string
	next    Handle
}

// NewContext creates an invocation context
func NewContext(logger *logrus.Logger) *Context {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Context{
		id:        uuid.New(),
		logger:    logger,
		converter: flightlog.NewConverter(logger),
		handles:   make(map[Handle]string),
	}
}

// ID returns the context identifier used in log entries
func (c *Context) ID() string {
	return c.id.String()
}

// Invoke decodes buf and keeps the GeoJSON text under a new handle
func (c *Context) Invoke(buf []byte, credential string) Result {
	res := c.run(buf, credential, func(conv *flightlog.Conversion) (Result, error) {
		return Result{Text: conv.GeoJSON}, nil
	})
	if res.OK() {
		res.Handle = c.register(res.Text)
	}
	return res
}

// DecodeToText decodes buf and returns a handle to the GeoJSON text
func (c *Context) DecodeToText(buf []byte, credential string) (Handle, bool) {
	res := c.Invoke(buf, credential)
	return res.Handle, res.OK()
}

// DecodeToFile decodes buf, read from path, and writes the GeoJSON next to
// it with a .geojson extension
func (c *Context) DecodeToFile(path string, buf []byte, credential string) Result {
	if path == "" {
		return c.Fail(flterr.New(flterr.KindInvalidArgument, "input path is empty"))
	}
	return c.run(buf, credential, func(conv *flightlog.Conversion) (Result, error) {
		w, err := output.NewWriter("", false, c.logger)
		if err != nil {
			return Result{}, err
		}
		written, err := w.Write(path, conv.GeoJSON)
		if err != nil {
			return Result{}, err
		}
		return Result{Path: written}, nil
	})
}

// DecodePath reads the log at path and writes its GeoJSON next to it
func (c *Context) DecodePath(path, credential string) Result {
	if path == "" {
		return c.Fail(flterr.New(flterr.KindInvalidArgument, "input path is empty"))
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return c.Fail(fmt.Errorf("failed to read flight log: %w", err))
	}
	return c.DecodeToFile(path, buf, credential)
}

// Fail records err as the outcome of a call rejected before decoding
func (c *Context) Fail(err error) Result {
	c.setError(err)
	c.logger.WithError(err).WithField("context", c.id.String()).Warn("Call rejected")
	return Result{Err: err}
}

// Text returns the text behind a handle
func (c *Context) Text(h Handle) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text, ok := c.handles[h]
	return text, ok
}

// LastError returns the message of the most recent failure. Reading it does
// not clear it; the next invocation does.
func (c *Context) LastError() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastErr == nil {
		return "", false
	}
	return *c.lastErr, true
}

// Release drops a handle. Releasing an unknown handle is a no-op.
func (c *Context) Release(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handles, h)
}

// Outstanding returns the number of unreleased handles
func (c *Context) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

func (c *Context) run(buf []byte, credential string, produce func(*flightlog.Conversion) (Result, error)) (res Result) {
	invocation := uuid.New()
	log := c.logger.WithFields(logrus.Fields{
		"context":    c.id.String(),
		"invocation": invocation.String(),
		"size":       len(buf),
	})

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("internal error: %v", r)}
			c.setError(res.Err)
			log.WithField("panic", r).Error("Recovered from panic while decoding")
		}
	}()

	conv, err := c.converter.Convert(buf, credential)
	if err == nil {
		res, err = produce(conv)
	}
	if err != nil {
		c.setError(err)
		log.WithError(err).WithField("kind", flterr.KindOf(err).String()).Warn("Decode failed")
		return Result{Err: err}
	}

	c.clearError()
	res.Diagnostics = conv.Model.Diagnostics()
	log.WithFields(logrus.Fields{
		"samples":     conv.Model.Len(),
		"diagnostics": len(res.Diagnostics),
	}).Info("Decoded flight log")
	return res
}

func (c *Context) register(text string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	c.handles[c.next] = text
	return c.next
}

func (c *Context) setError(err error) {
	msg := err.Error()
	c.mu.Lock()
	c.lastErr = &msg
	c.mu.Unlock()
}

func (c *Context) clearError() {
	c.mu.Lock()
	c.lastErr = nil
	c.mu.Unlock()
}
