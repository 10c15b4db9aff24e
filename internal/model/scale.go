package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Role selects the scale-in strategy of a host group
type Role string

const (
	RoleBackend Role = "backend"
	RoleClient  Role = "client"
)

// UnmarshalText rejects unknown roles
func (r *Role) UnmarshalText(text []byte) error {
	switch v := Role(text); v {
	case RoleBackend, RoleClient:
		*r = v
		return nil
	default:
		return fmt.Errorf("unknown role %q", string(text))
	}
}

// ScaleInRequest is the invocation event
type ScaleInRequest struct {
	InstanceIDs     []string `json:"instance_ids"`
	Username        string   `json:"username"`
	Password        string   `json:"password"`
	DesiredCapacity *int     `json:"desired_capacity"`
	Role            Role     `json:"role"`
	PrivateIPs      []string `json:"private_ips"`
}

// Validate checks the request before any control-plane call is made
func (r *ScaleInRequest) Validate() error {
	if len(r.PrivateIPs) == 0 {
		return errors.New("private_ips must not be empty")
	}
	if r.DesiredCapacity == nil {
		return errors.New("desired_capacity is required")
	}
	if *r.DesiredCapacity < 0 {
		return fmt.Errorf("desired_capacity must not be negative, got %d", *r.DesiredCapacity)
	}
	switch r.Role {
	case RoleBackend, RoleClient:
	default:
		return fmt.Errorf("role must be %q or %q, got %q", RoleBackend, RoleClient, r.Role)
	}
	return nil
}

// Capacity returns the desired capacity, zero when unset. Call Validate first.
func (r *ScaleInRequest) Capacity() int {
	if r.DesiredCapacity == nil {
		return 0
	}
	return *r.DesiredCapacity
}

// HostRecord is one host of the invocation output
type HostRecord struct {
	HostID     string    `json:"host_id"`
	InstanceID string    `json:"instance_id"`
	Status     string    `json:"status"`
	AddedTime  time.Time `json:"added_time"`
}

// MarshalJSON renders a host without a cloud instance as "instance_id": null
func (r HostRecord) MarshalJSON() ([]byte, error) {
	type record HostRecord
	out := struct {
		record
		InstanceID *string `json:"instance_id"`
	}{record: record(r)}
	if r.InstanceID != "" {
		out.InstanceID = &r.InstanceID
	}
	return json.Marshal(out)
}

// ScaleInResponse is the invocation output. Hosts reflects the inventory as
// fetched, before the issued commands take effect. Inactive lists the instance
// ids of in-group hosts that were inactive and scheduled for removal.
type ScaleInResponse struct {
	Hosts    []HostRecord `json:"hosts"`
	Inactive []string     `json:"inactive"`
}
