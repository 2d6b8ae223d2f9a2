// internal/session/registry.go
package session

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/matchroom-gg/matchroom/internal/clock"
	"github.com/matchroom-gg/matchroom/internal/engine"
)

// Session codes avoid 0/O and 1/I so they survive being read aloud.
const (
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// ErrRegistryFull means code allocation kept colliding; with a 31^6 code
// space this only happens when the registry is pathologically crowded.
var ErrRegistryFull = errors.New("could not allocate a unique session code")

// Registry is the process-wide map of live sessions. Insert and remove are
// the only registry-wide mutations; everything else happens under each
// session's own lock, so unrelated sessions never contend.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	eng engine.Engine

	// Configure is applied to every session this registry creates, including
	// rematch successors. The server installs its settle/broadcast wiring
	// here so rematches inherit it automatically.
	Configure func(*Session)
}

// NewRegistry builds an empty registry backed by the given rules engine.
func NewRegistry(eng engine.Engine) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		eng:      eng,
	}
}

// Create allocates a unique code, builds a pending session and registers it.
func (r *Registry) Create(tc clock.TimeControl) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.freeCodeLocked()
	if err != nil {
		return nil, err
	}
	s := New(code, r.eng, tc)
	s.OnRematch = r.createRematch
	if r.Configure != nil {
		r.Configure(s)
	}
	r.sessions[code] = s
	return s, nil
}

// Get looks up a session by code.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Remove drops the session from the registry unconditionally.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// RemoveIfEmpty evicts the session only when nobody is attached to it. A
// session is never forcibly terminated by disconnection alone.
func (r *Registry) RemoveIfEmpty(code string) bool {
	r.mu.Lock()
	s, ok := r.sessions[code]
	r.mu.Unlock()
	if !ok || !s.Empty() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the registry lock; someone may have joined meanwhile.
	if cur, ok := r.sessions[code]; ok && cur == s && s.Empty() {
		delete(r.sessions, code)
		// An evicted session is unreachable, so settle it if it has not
		// finished on its own. Cancel stops the clock watch goroutine.
		if !s.Terminal() {
			s.Cancel()
		}
		return true
	}
	return false
}

// List snapshots the registered sessions.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ReapIdle evicts terminal sessions nobody is attached to anymore. Wired to
// a periodic job so finished games do not accumulate unbounded.
func (r *Registry) ReapIdle() int {
	reaped := 0
	for _, s := range r.List() {
		if s.Terminal() && r.RemoveIfEmpty(s.Code) {
			reaped++
		}
	}
	return reaped
}

// createRematch is the OnRematch hook: a fresh session with colors swapped
// and both participants already seated.
func (r *Registry) createRematch(old *Session) (*Session, error) {
	old.Mu.Lock()
	var white, black *Participant
	if old.Black != nil {
		w := *old.Black
		white = &w
	}
	if old.White != nil {
		b := *old.White
		black = &b
	}
	tc := old.TimeControl
	old.Mu.Unlock()

	next, err := r.Create(tc)
	if err != nil {
		return nil, err
	}
	if white != nil {
		if _, err := next.Seat(white); err != nil {
			r.Remove(next.Code)
			return nil, err
		}
	}
	if black != nil {
		if _, err := next.Seat(black); err != nil {
			r.Remove(next.Code)
			return nil, err
		}
	}
	return next, nil
}

// freeCodeLocked draws codes until one is unused. Assumes r.mu is held.
func (r *Registry) freeCodeLocked() (string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return "", ErrRegistryFull
}

func randomCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
