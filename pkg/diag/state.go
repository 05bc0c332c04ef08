package diag

import (
	"fmt"
	"io"
	"sync"
)

// fallbackMessage is printed when an error is set but renders to nothing.
const fallbackMessage = "Error Creating Error String"

// Default is the process-level State used by command line entry points.
// Library code should take a *State (or return errors) instead.
var Default = &State{}

// State holds the most recently reported error until it is consumed.
//
// A State has a single logical writer: one walk or one command invocation.
// The mutex only keeps a misuse from corrupting memory; concurrent walks
// still need a State each or their diagnostics overwrite each other.
//
// The zero value is ready to use and holds no error.
type State struct {
	mu      sync.Mutex
	set     bool
	err     Error
	context string
}

// Report records code and its primary message, replacing any unconsumed
// error and clearing the secondary message. Capture Get before reporting
// again to keep an earlier error.
func (s *State) Report(code Code, format string, args ...any) {
	s.ReportError(New(code, format, args...))
}

// ReportError records an existing error value. A nil error is ignored.
func (s *State) ReportError(e *Error) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = true
	s.err = *e
	s.context = e.Context
}

// AddContext sets the secondary message without touching the code.
func (s *State) AddContext(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = fmt.Sprintf(format, args...)
}

// IsSet reports whether an unconsumed error is held.
func (s *State) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Take returns the held error and clears the state. It returns nil when no
// error is set.
func (s *State) Take() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil
	}
	e := s.err
	e.Context = s.context
	s.clear()
	return &e
}

// Get renders the held error as one line terminated by a newline and clears
// the state. The boolean is false, and the string empty, when no error is
// set; a second Get without an intervening Report therefore reports nothing.
func (s *State) Get() (string, bool) {
	e := s.Take()
	if e == nil {
		return "", false
	}
	return e.Render() + "\n", true
}

// Print writes the held error to w and clears the state. Nothing is written
// when no error is set.
func (s *State) Print(w io.Writer) error {
	if !s.IsSet() {
		return nil
	}
	msg, ok := s.Get()
	if !ok || msg == "" {
		msg = fallbackMessage
	}
	_, err := io.WriteString(w, msg)
	return err
}

// Reset clears the code and both messages without rendering.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *State) clear() {
	s.set = false
	s.err = Error{}
	s.context = ""
}
