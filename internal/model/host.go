package model

import (
	"fmt"
	"strings"
	"time"
)

// HostState is the cluster membership state of a host
type HostState string

const (
	HostStateActive       HostState = "ACTIVE"
	HostStateDeactivating HostState = "DEACTIVATING"
	HostStateInactive     HostState = "INACTIVE"
)

// UnmarshalText rejects states the planner does not know how to classify
func (s *HostState) UnmarshalText(text []byte) error {
	switch v := HostState(text); v {
	case HostStateActive, HostStateDeactivating, HostStateInactive:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown host state %q", string(text))
	}
}

// invalidHostMarker appears in ids of hosts the control plane no longer resolves, e.g. HostId<INVALID>
const invalidHostMarker = "INVALID"

// Host is one entry of hosts_list
type Host struct {
	// ID is the decorated control-plane id, e.g. "HostId<42>"
	ID         string
	InstanceID string
	State      HostState
	// Status is the liveness reported by the control plane (UP, DOWN, ...)
	Status    string
	AddedTime time.Time
	IP        string
}

// HostEntry is the wire shape of a hosts_list value
type HostEntry struct {
	State     HostState `json:"state"`
	Status    string    `json:"status"`
	AddedTime time.Time `json:"added_time"`
	HostIP    string    `json:"host_ip"`
	Aws       *struct {
		InstanceID string `json:"instance_id"`
	} `json:"aws"`
}

// HostFromEntry builds a Host from its hosts_list key and value
func HostFromEntry(id string, e HostEntry) Host {
	h := Host{
		ID:        id,
		State:     e.State,
		Status:    e.Status,
		AddedTime: e.AddedTime,
		IP:        e.HostIP,
	}
	if e.Aws != nil {
		h.InstanceID = e.Aws.InstanceID
	}
	return h
}

// IsInvalid reports whether the host id carries the INVALID sentinel
func (h Host) IsInvalid() bool {
	return IsInvalidHostID(h.ID)
}

// IsInvalidHostID reports whether id carries the INVALID sentinel
func IsInvalidHostID(id string) bool {
	return strings.Contains(id, invalidHostMarker)
}

// ParseHostID strips the decoration from a host id: "HostId<42>" becomes "42".
// Commands such as cluster_deactivate_hosts only accept the bare form.
func ParseHostID(id string) (string, error) {
	start := strings.IndexByte(id, '<')
	if start < 0 {
		return "", fmt.Errorf("host id %q has no '<'", id)
	}
	rest := id[start+1:]
	end := strings.IndexByte(rest, '>')
	if end < 0 {
		return "", fmt.Errorf("host id %q has no '>'", id)
	}
	if end == 0 {
		return "", fmt.Errorf("host id %q is empty", id)
	}
	return rest[:end], nil
}
