//go:build cgo

package main

/*
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

import (
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"

	"flightlog/internal/output"
)

var sessions = newRegistry(libraryLogger())

// Last error strings handed to C, one per context
var (
	errorStrings      = make(map[uintptr]*C.char)
	errorStringsMutex sync.Mutex
)

// Text strings handed to C, keyed by address
var (
	textStrings      = make(map[uintptr]*C.char)
	textStringsMutex sync.Mutex
)

func libraryLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if os.Getenv("FLIGHTLOG_LOG_LEVEL") != "" {
		if level, err := logrus.ParseLevel(os.Getenv("FLIGHTLOG_LOG_LEVEL")); err == nil {
			logger.SetOutput(os.Stderr)
			logger.SetLevel(level)
		}
	}
	return logger
}

//export flightlog_context_new
func flightlog_context_new() C.uintptr_t {
	return C.uintptr_t(sessions.open())
}

//export flightlog_context_free
func flightlog_context_free(ctx C.uintptr_t) {
	for _, addr := range sessions.close(uintptr(ctx)) {
		freeText(addr)
	}
	freeError(uintptr(ctx))
}

// flightlog_decode converts the log at path and writes the GeoJSON next to
// it. It returns 1 on success and 0 on failure.
//
//export flightlog_decode
func flightlog_decode(ctx C.uintptr_t, path *C.char, credential *C.char) C.int {
	s, ok := sessions.get(uintptr(ctx))
	if !ok {
		return 0
	}

	// a NULL path is rejected by the bridge as an empty one
	if res := s.ctx.DecodePath(goString(path), goString(credential)); !res.OK() {
		return 0
	}
	return 1
}

// flightlog_decode_to_text converts length bytes at data and returns the
// GeoJSON text, or NULL on failure. The text stays valid until passed to
// flightlog_release or the context is freed.
//
//export flightlog_decode_to_text
func flightlog_decode_to_text(ctx C.uintptr_t, data *C.uchar, length C.size_t, credential *C.char) *C.char {
	s, ok := sessions.get(uintptr(ctx))
	if !ok {
		return nil
	}

	n, err := bufferLength(uint64(length))
	if err != nil {
		s.ctx.Fail(err)
		return nil
	}
	var buf []byte
	if data != nil && n > 0 {
		buf = C.GoBytes(unsafe.Pointer(data), C.int(n))
	}
	res := s.ctx.Invoke(buf, goString(credential))
	if !res.OK() {
		return nil
	}

	text := C.CString(res.Text)
	addr := uintptr(unsafe.Pointer(text))
	textStringsMutex.Lock()
	textStrings[addr] = text
	textStringsMutex.Unlock()
	s.track(addr, res.Handle)
	return text
}

// flightlog_last_error returns the message of the last failure on ctx, or
// NULL. The string is owned by the context.
//
//export flightlog_last_error
func flightlog_last_error(ctx C.uintptr_t) *C.char {
	s, ok := sessions.get(uintptr(ctx))
	if !ok {
		return nil
	}
	msg, ok := s.ctx.LastError()
	if !ok {
		return nil
	}
	return cachedError(uintptr(ctx), msg)
}

//export flightlog_release
func flightlog_release(ctx C.uintptr_t, text *C.char) {
	if text == nil {
		return
	}
	s, ok := sessions.get(uintptr(ctx))
	if !ok {
		return
	}
	addr := uintptr(unsafe.Pointer(text))
	if s.untrack(addr) {
		freeText(addr)
	}
}

// flightlog_geojson_path returns the path flightlog_decode writes for path.
// Free the result with flightlog_string_free.
//
//export flightlog_geojson_path
func flightlog_geojson_path(path *C.char) *C.char {
	if path == nil {
		return nil
	}
	return C.CString(output.DerivedPath(C.GoString(path)))
}

//export flightlog_string_free
func flightlog_string_free(s *C.char) {
	C.free(unsafe.Pointer(s))
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

func cachedError(ctx uintptr, msg string) *C.char {
	errorStringsMutex.Lock()
	defer errorStringsMutex.Unlock()

	if old, ok := errorStrings[ctx]; ok {
		if C.GoString(old) == msg {
			return old
		}
		C.free(unsafe.Pointer(old))
	}
	cs := C.CString(msg)
	errorStrings[ctx] = cs
	return cs
}

func freeError(ctx uintptr) {
	errorStringsMutex.Lock()
	defer errorStringsMutex.Unlock()

	if old, ok := errorStrings[ctx]; ok {
		C.free(unsafe.Pointer(old))
		delete(errorStrings, ctx)
	}
}

func freeText(addr uintptr) {
	textStringsMutex.Lock()
	text, ok := textStrings[addr]
	delete(textStrings, addr)
	textStringsMutex.Unlock()
	if ok {
		C.free(unsafe.Pointer(text))
	}
}
