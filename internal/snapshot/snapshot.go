// Package snapshot assembles a consistent view of cluster hosts and drives
// scoped to one host group.
package snapshot

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/kirychukyurii/weka-scale-in/internal/model"
)

const (
	MethodHostsList = "hosts_list"
	MethodDisksList = "disks_list"
)

// Caller performs one JSON-RPC call. *jrpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params, result any) (http.Header, error)
}

// Snapshot is the cluster state one invocation plans against
type Snapshot struct {
	// Hosts is the full inventory keyed by decorated host id, including hosts outside the group
	Hosts map[string]model.Host

	// Drives maps in-group hosts to their drives. Hosts with the INVALID
	// sentinel or in DEACTIVATING state are left out.
	Drives map[string][]model.Drive

	// Group holds every in-group host, oldest first
	Group []model.Host

	Inactive     []model.Host
	Deactivating []model.Host
	// Active is every in-group host that is neither inactive nor deactivating, oldest first.
	// Its order decides which hosts are evicted first.
	Active []model.Host
}

// Build fetches hosts_list and disks_list and assembles the snapshot for the
// host group identified by instanceIDs.
func Build(ctx context.Context, caller Caller, instanceIDs []string) (*Snapshot, error) {
	var hostEntries map[string]model.HostEntry
	if _, err := caller.Call(ctx, MethodHostsList, map[string]any{}, &hostEntries); err != nil {
		return nil, fmt.Errorf("failed to list hosts: %w", err)
	}

	var driveEntries map[string]model.Drive
	if _, err := caller.Call(ctx, MethodDisksList, map[string]any{"show_removed": false}, &driveEntries); err != nil {
		return nil, fmt.Errorf("failed to list drives: %w", err)
	}

	hosts := make([]model.Host, 0, len(hostEntries))
	for id, entry := range hostEntries {
		hosts = append(hosts, model.HostFromEntry(id, entry))
	}

	drives := make([]model.Drive, 0, len(driveEntries))
	for id, drive := range driveEntries {
		drive.ID = id
		drives = append(drives, drive)
	}

	return New(hosts, drives, instanceIDs), nil
}

// New assembles a snapshot from already decoded hosts and drives
func New(hosts []model.Host, drives []model.Drive, instanceIDs []string) *Snapshot {
	group := make(map[string]struct{}, len(instanceIDs))
	for _, id := range instanceIDs {
		group[id] = struct{}{}
	}
	inGroup := func(h model.Host) bool {
		if h.InstanceID == "" {
			return false
		}
		_, ok := group[h.InstanceID]
		return ok
	}

	s := &Snapshot{
		Hosts:  make(map[string]model.Host, len(hosts)),
		Drives: make(map[string][]model.Drive),
	}

	for _, h := range hosts {
		s.Hosts[h.ID] = h
		if !inGroup(h) {
			continue
		}
		s.Group = append(s.Group, h)
		switch h.State {
		case model.HostStateInactive:
			s.Inactive = append(s.Inactive, h)
		case model.HostStateDeactivating:
			s.Deactivating = append(s.Deactivating, h)
		default:
			s.Active = append(s.Active, h)
		}
	}

	sortByAge(s.Group)
	sortByAge(s.Inactive)
	sortByAge(s.Deactivating)
	sortByAge(s.Active)

	drives = slices.Clone(drives)
	slices.SortFunc(drives, func(a, b model.Drive) int { return strings.Compare(a.ID, b.ID) })
	for _, d := range drives {
		h, ok := s.Hosts[d.HostID]
		if !ok || !inGroup(h) || h.IsInvalid() || h.State == model.HostStateDeactivating {
			continue
		}
		s.Drives[h.ID] = append(s.Drives[h.ID], d)
	}

	return s
}

// sortByAge orders hosts oldest first; equal times fall back to the host id
func sortByAge(hosts []model.Host) {
	slices.SortStableFunc(hosts, func(a, b model.Host) int {
		return cmp.Or(a.AddedTime.Compare(b.AddedTime), strings.Compare(a.ID, b.ID))
	})
}

// Response reshapes the full inventory into the invocation output
func (s *Snapshot) Response() *model.ScaleInResponse {
	all := make([]model.Host, 0, len(s.Hosts))
	for _, h := range s.Hosts {
		all = append(all, h)
	}
	sortByAge(all)

	resp := &model.ScaleInResponse{
		Hosts:    make([]model.HostRecord, 0, len(all)),
		Inactive: make([]string, 0, len(s.Inactive)),
	}
	for _, h := range all {
		resp.Hosts = append(resp.Hosts, model.HostRecord{
			HostID:     h.ID,
			InstanceID: h.InstanceID,
			Status:     h.Status,
			AddedTime:  h.AddedTime,
		})
	}
	for _, h := range s.Inactive {
		resp.Inactive = append(resp.Inactive, h.InstanceID)
	}
	return resp
}
