package handlers

import (
	"net/http"

	"promptdeck/internal/subscription"
)

// StatusReporter reports the state of every partition subscription.
type StatusReporter interface {
	Status() []subscription.Status
}

// Sync serves operational views of the subscription manager.
type Sync struct {
	manager StatusReporter
}

// NewSync creates the sync handler group.
func NewSync(m StatusReporter) *Sync {
	return &Sync{manager: m}
}

// Status lists every active subscription with its state and last error.
func (s *Sync) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}
