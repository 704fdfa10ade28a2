// ABOUTME: Lifecycle supervisor that carries restart and shutdown requests
// ABOUTME: Tool handlers signal it; the serve loop acts on the signal

package lifecycle

import "sync"

// Action is a requested lifecycle transition.
type Action int

const (
	// Restart asks the serve loop to rebuild and restart the gateway.
	Restart Action = iota + 1
	// Shutdown asks the serve loop to stop and exit.
	Shutdown
)

func (a Action) String() string {
	switch a {
	case Restart:
		return "restart"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Signal is a lifecycle request with the reason it was made.
type Signal struct {
	Action Action
	Reason string
}

// Supervisor delivers lifecycle signals to whoever owns the process.
// Requests never block; while one request is outstanding, later ones are
// dropped except that a shutdown supersedes a pending restart.
type Supervisor struct {
	mu      sync.Mutex
	signals chan Signal
}

// NewSupervisor creates a Supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{signals: make(chan Signal, 1)}
}

// RequestRestart asks for a restart.
func (s *Supervisor) RequestRestart(reason string) {
	s.request(Signal{Action: Restart, Reason: reason})
}

// RequestShutdown asks for a shutdown.
func (s *Supervisor) RequestShutdown(reason string) {
	s.request(Signal{Action: Shutdown, Reason: reason})
}

func (s *Supervisor) request(sig Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case s.signals <- sig:
		return
	default:
	}

	if sig.Action != Shutdown {
		return
	}
	// Replace a queued restart with the shutdown.
	select {
	case queued := <-s.signals:
		if queued.Action == Shutdown {
			sig = queued
		}
	default:
	}
	s.signals <- sig
}

// Signals returns the channel on which lifecycle requests arrive.
func (s *Supervisor) Signals() <-chan Signal {
	return s.signals
}
