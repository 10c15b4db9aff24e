// Package report publishes the outcome of scale-in invocations for operators.
// Reports are never read back by the planner.
package report

import (
	"context"
	"errors"
	"time"

	"github.com/kirychukyurii/weka-scale-in/internal/model"
)

// ErrNotFound is returned by Last when no report exists for the role
var ErrNotFound = errors.New("report not found")

// Report describes one invocation
type Report struct {
	Role            model.Role `json:"role"`
	Endpoint        string     `json:"endpoint"`
	DesiredCapacity int        `json:"desired_capacity"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`

	DeactivatedHosts []string `json:"deactivated_hosts,omitempty"`
	DrainedHosts     []string `json:"drained_hosts,omitempty"`
	RemovedHosts     []string `json:"removed_hosts,omitempty"`
	AlreadyRemoved   []string `json:"already_removed,omitempty"`

	Error    string                 `json:"error,omitempty"`
	Response *model.ScaleInResponse `json:"response,omitempty"`
}

// Store keeps the last report per role
type Store interface {
	// Save records rep as the latest report of its role
	Save(ctx context.Context, rep *Report) error

	// Last returns the latest report of role or ErrNotFound
	Last(ctx context.Context, role model.Role) (*Report, error)

	// Close releases the store's connections
	Close() error
}
