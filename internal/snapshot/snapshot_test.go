package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirychukyurii/weka-scale-in/internal/model"
)

// fakeCaller answers calls from canned JSON results keyed by method
type fakeCaller struct {
	results map[string]string
	errs    map[string]error
	calls   []string
	params  []any
}

func (f *fakeCaller) Call(_ context.Context, method string, params, result any) (http.Header, error) {
	f.calls = append(f.calls, method)
	f.params = append(f.params, params)
	if err := f.errs[method]; err != nil {
		return nil, err
	}
	if raw, ok := f.results[method]; ok && result != nil {
		if err := json.Unmarshal([]byte(raw), result); err != nil {
			return nil, err
		}
	}
	return http.Header{}, nil
}

const hostsJSON = `{
	"HostId<0>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-03T00:00:00Z", "aws": {"instance_id": "i-0"}},
	"HostId<1>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-01T00:00:00Z", "aws": {"instance_id": "i-1"}},
	"HostId<2>": {"state": "DEACTIVATING", "status": "UP", "added_time": "2024-01-02T00:00:00Z", "aws": {"instance_id": "i-2"}},
	"HostId<3>": {"state": "INACTIVE", "status": "DOWN", "added_time": "2024-01-04T00:00:00Z", "aws": {"instance_id": "i-3"}},
	"HostId<4>": {"state": "ACTIVE", "status": "UP", "added_time": "2023-12-01T00:00:00Z", "aws": {"instance_id": "i-other"}},
	"HostId<5>": {"state": "ACTIVE", "status": "UP", "added_time": "2023-12-02T00:00:00Z", "aws": null}
}`

const drivesJSON = `{
	"DiskId<0>": {"host_id": "HostId<0>", "status": "ACTIVE", "uuid": "d0"},
	"DiskId<1>": {"host_id": "HostId<1>", "status": "PHASING_IN", "uuid": "d1"},
	"DiskId<2>": {"host_id": "HostId<2>", "status": "ACTIVE", "uuid": "d2"},
	"DiskId<3>": {"host_id": "HostId<3>", "status": "INACTIVE", "uuid": "d3"},
	"DiskId<4>": {"host_id": "HostId<4>", "status": "ACTIVE", "uuid": "d4"},
	"DiskId<9>": {"host_id": "HostId<INVALID>", "status": "INACTIVE", "uuid": "d9"}
}`

func groupIDs() []string {
	return []string{"i-0", "i-1", "i-2", "i-3"}
}

func ids(hosts []model.Host) []string {
	var out []string
	for _, h := range hosts {
		out = append(out, h.ID)
	}
	return out
}

// TestBuild verifies the calls made and the partitioning of the host group
func TestBuild(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{MethodHostsList: hostsJSON, MethodDisksList: drivesJSON}}

	snap, err := Build(context.Background(), caller, groupIDs())
	require.NoError(t, err)

	assert.Equal(t, []string{MethodHostsList, MethodDisksList}, caller.calls)
	assert.Equal(t, map[string]any{}, caller.params[0])
	assert.Equal(t, map[string]any{"show_removed": false}, caller.params[1])

	assert.Len(t, snap.Hosts, 6, "full inventory keeps out-of-group hosts")
	assert.Equal(t, []string{"HostId<1>", "HostId<0>"}, ids(snap.Active), "active hosts are oldest first")
	assert.Equal(t, []string{"HostId<2>"}, ids(snap.Deactivating))
	assert.Equal(t, []string{"HostId<3>"}, ids(snap.Inactive))
	assert.Equal(t, []string{"HostId<1>", "HostId<2>", "HostId<0>", "HostId<3>"}, ids(snap.Group))
}

// TestBuildDriveIndex verifies which drives may influence planning
func TestBuildDriveIndex(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{MethodHostsList: hostsJSON, MethodDisksList: drivesJSON}}

	snap, err := Build(context.Background(), caller, groupIDs())
	require.NoError(t, err)

	assert.Contains(t, snap.Drives, "HostId<0>")
	assert.Contains(t, snap.Drives, "HostId<1>")
	assert.Contains(t, snap.Drives, "HostId<3>")
	assert.NotContains(t, snap.Drives, "HostId<2>", "deactivating hosts are excluded")
	assert.NotContains(t, snap.Drives, "HostId<4>", "out-of-group hosts are excluded")
	assert.NotContains(t, snap.Drives, "HostId<INVALID>", "drives of unknown hosts are ignored")

	assert.Equal(t, "DiskId<0>", snap.Drives["HostId<0>"][0].ID)
	assert.Equal(t, model.DriveStatusPhasingIn, snap.Drives["HostId<1>"][0].Status)
}

// TestBuildInvalidHostExcludedFromDrives verifies the INVALID sentinel on a listed host
func TestBuildInvalidHostExcludedFromDrives(t *testing.T) {
	now := time.Now()
	hosts := []model.Host{{ID: "HostId<INVALID>", InstanceID: "i-x", State: model.HostStateActive, AddedTime: now}}
	drives := []model.Drive{{ID: "DiskId<1>", HostID: "HostId<INVALID>", Status: model.DriveStatusActive, UUID: "u"}}

	snap := New(hosts, drives, []string{"i-x"})
	assert.Contains(t, snap.Hosts, "HostId<INVALID>")
	assert.Empty(t, snap.Drives)
}

// TestBuildErrors verifies list failures abort the snapshot
func TestBuildErrors(t *testing.T) {
	boom := errors.New("boom")

	caller := &fakeCaller{errs: map[string]error{MethodHostsList: boom}}
	_, err := Build(context.Background(), caller, groupIDs())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{MethodHostsList}, caller.calls)

	caller = &fakeCaller{results: map[string]string{MethodHostsList: hostsJSON}, errs: map[string]error{MethodDisksList: boom}}
	_, err = Build(context.Background(), caller, groupIDs())
	assert.ErrorIs(t, err, boom)
}

// TestBuildRejectsUnknownState verifies unknown host states fail decoding
func TestBuildRejectsUnknownState(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{
		MethodHostsList: `{"HostId<0>": {"state": "MYSTERY", "added_time": "2024-01-01T00:00:00Z"}}`,
		MethodDisksList: `{}`,
	}}

	_, err := Build(context.Background(), caller, groupIDs())
	assert.Error(t, err)
}

// TestResponse verifies the invocation output shape
func TestResponse(t *testing.T) {
	caller := &fakeCaller{results: map[string]string{MethodHostsList: hostsJSON, MethodDisksList: drivesJSON}}
	snap, err := Build(context.Background(), caller, groupIDs())
	require.NoError(t, err)

	resp := snap.Response()
	require.Len(t, resp.Hosts, 6)
	assert.Equal(t, "HostId<4>", resp.Hosts[0].HostID, "oldest host first")
	assert.Equal(t, "i-other", resp.Hosts[0].InstanceID)
	assert.Equal(t, "UP", resp.Hosts[0].Status)
	assert.Equal(t, []string{"i-3"}, resp.Inactive)
}
