package model

import "fmt"

// DriveStatus is the activation status of a drive
type DriveStatus string

const (
	DriveStatusActive     DriveStatus = "ACTIVE"
	DriveStatusPhasingIn  DriveStatus = "PHASING_IN"
	DriveStatusPhasingOut DriveStatus = "PHASING_OUT"
	DriveStatusInactive   DriveStatus = "INACTIVE"
)

// UnmarshalText rejects unknown statuses instead of counting them as inactive
func (s *DriveStatus) UnmarshalText(text []byte) error {
	switch v := DriveStatus(text); v {
	case DriveStatusActive, DriveStatusPhasingIn, DriveStatusPhasingOut, DriveStatusInactive:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown drive status %q", string(text))
	}
}

// Serving reports whether the drive is active or phasing in
func (s DriveStatus) Serving() bool {
	return s == DriveStatusActive || s == DriveStatusPhasingIn
}

// Eligible reports whether the drive still holds data (active, phasing in or phasing out)
func (s DriveStatus) Eligible() bool {
	return s.Serving() || s == DriveStatusPhasingOut
}

// Drive is one entry of disks_list
type Drive struct {
	ID     string      `json:"-"`
	UUID   string      `json:"uuid"`
	HostID string      `json:"host_id"`
	Status DriveStatus `json:"status"`
}
