package main

import (
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"flightlog/internal/bridge"
	"flightlog/internal/flterr"
)

// session is the state behind one context id
type session struct {
	ctx *bridge.Context

	mu    sync.Mutex
	texts map[uintptr]bridge.Handle
}

// registry maps the ids handed to C callers to their sessions
type registry struct {
	mu       sync.RWMutex
	sessions map[uintptr]*session
	next     uintptr
	logger   *logrus.Logger
}

func newRegistry(logger *logrus.Logger) *registry {
	return &registry{
		sessions: make(map[uintptr]*session),
		next:     1,
		logger:   logger,
	}
}

func (r *registry) open() uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++
	r.sessions[id] = &session{
		ctx:   bridge.NewContext(r.logger),
		texts: make(map[uintptr]bridge.Handle),
	}
	return id
}

func (r *registry) get(id uintptr) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// close drops a session and returns the addresses of the strings it still
// owns so the caller can free them
func (r *registry) close(id uintptr) []uintptr {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]uintptr, 0, len(s.texts))
	for addr, h := range s.texts {
		s.ctx.Release(h)
		addrs = append(addrs, addr)
	}
	s.texts = nil
	return addrs
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// track associates the address of a handed out string with its handle
func (s *session) track(addr uintptr, h bridge.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[addr] = h
}

// untrack releases the handle behind addr. It reports false for addresses
// this session never handed out.
func (s *session) untrack(addr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.texts[addr]
	if !ok {
		return false
	}
	delete(s.texts, addr)
	s.ctx.Release(h)
	return true
}

// bufferLength checks a caller-supplied byte count before it is copied
func bufferLength(n uint64) (int, error) {
	if n > math.MaxInt32 {
		return 0, flterr.Newf(flterr.KindInvalidArgument, "buffer of %d bytes exceeds the %d byte limit", n, math.MaxInt32)
	}
	return int(n), nil
}
