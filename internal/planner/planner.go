// Package planner decides which hosts and drives to deactivate and which
// inactive hosts to remove. It performs no I/O.
package planner

import (
	"fmt"

	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/snapshot"
)

// DriveBatch is one cluster_deactivate_drives call: the serving drives of one host
type DriveBatch struct {
	HostID     string
	DriveUUIDs []string
}

// Plan is the ordered set of commands for one invocation. Host ids are bare (undecorated).
type Plan struct {
	Role model.Role

	// HostIDsToDeactivate go to a single cluster_deactivate_hosts call
	HostIDsToDeactivate []string

	// DriveBatches are issued one call per batch, oldest host first (backend only)
	DriveBatches []DriveBatch

	// HostIDsToRemove are inactive in-group hosts, one cluster_remove_host call each
	HostIDsToRemove []string

	// Excess is how many hosts exceed the desired capacity; zero when none do
	Excess int
}

// Empty reports whether the plan issues no command at all
func (p *Plan) Empty() bool {
	return len(p.HostIDsToDeactivate) == 0 && len(p.DriveBatches) == 0 && len(p.HostIDsToRemove) == 0
}

// Compute plans the scale-in of the snapshot's host group down to desiredCapacity hosts
func Compute(s *snapshot.Snapshot, role model.Role, desiredCapacity int) (*Plan, error) {
	if desiredCapacity < 0 {
		return nil, fmt.Errorf("desired capacity must not be negative, got %d", desiredCapacity)
	}

	p := &Plan{Role: role}

	var err error
	switch role {
	case model.RoleBackend:
		err = planBackend(p, s, desiredCapacity)
	case model.RoleClient:
		err = planClient(p, s, desiredCapacity)
	default:
		err = fmt.Errorf("unknown role %q", role)
	}
	if err != nil {
		return nil, err
	}

	for _, h := range s.Inactive {
		if h.IsInvalid() {
			continue
		}
		id, err := model.ParseHostID(h.ID)
		if err != nil {
			return nil, err
		}
		p.HostIDsToRemove = append(p.HostIDsToRemove, id)
	}

	return p, nil
}

// planBackend deactivates hosts whose drives are all gone, then queues the
// drives of the oldest fully active hosts until the excess is covered.
func planBackend(p *Plan, s *snapshot.Snapshot, desired int) error {
	serving := make(map[string][]string)

	for _, h := range s.Group {
		if h.State == model.HostStateDeactivating || h.IsInvalid() {
			continue
		}

		eligible := 0
		for _, d := range s.Drives[h.ID] {
			if d.Status.Serving() {
				serving[h.ID] = append(serving[h.ID], d.UUID)
			}
			if d.Status.Eligible() {
				eligible++
			}
		}

		// no drive left to drain, including hosts that never had drives
		if eligible == 0 {
			id, err := model.ParseHostID(h.ID)
			if err != nil {
				return err
			}
			p.HostIDsToDeactivate = append(p.HostIDsToDeactivate, id)
		}
	}

	if len(serving) <= desired {
		return nil
	}
	p.Excess = len(serving) - desired

	for _, h := range s.Active {
		uuids, ok := serving[h.ID]
		if !ok {
			continue
		}
		id, err := model.ParseHostID(h.ID)
		if err != nil {
			return err
		}
		p.DriveBatches = append(p.DriveBatches, DriveBatch{HostID: id, DriveUUIDs: uuids})
		if len(p.DriveBatches) >= p.Excess {
			break
		}
	}

	return nil
}

// planClient evicts the oldest active hosts beyond desired, counting hosts
// already deactivating toward the reduction. Clients carry no drives.
func planClient(p *Plan, s *snapshot.Snapshot, desired int) error {
	excess := len(s.Active) - desired - len(s.Deactivating)
	if excess <= 0 {
		return nil
	}
	p.Excess = excess

	for _, h := range s.Active[:excess] {
		id, err := model.ParseHostID(h.ID)
		if err != nil {
			return err
		}
		p.HostIDsToDeactivate = append(p.HostIDsToDeactivate, id)
	}
	return nil
}
