package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirychukyurii/weka-scale-in/internal/config"
	"github.com/kirychukyurii/weka-scale-in/internal/jrpc"
	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/report"
)

type rpcCall struct {
	URL           string
	Authorization string
	Method        string
	Params        map[string]any
}

// clusterDoer emulates the control plane: it answers by JSON-RPC method
type clusterDoer struct {
	mu       sync.Mutex
	calls    []rpcCall
	handlers map[string]func(params map[string]any) (int, string)
}

func (d *clusterDoer) Do(req *http.Request) (*http.Response, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}

	var body struct {
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.calls = append(d.calls, rpcCall{
		URL:           req.URL.String(),
		Authorization: req.Header.Get("Authorization"),
		Method:        body.Method,
		Params:        body.Params,
	})
	handler, ok := d.handlers[body.Method]
	d.mu.Unlock()

	status, payload := http.StatusOK, `{"jsonrpc":"2.0","result":null}`
	if ok {
		status, payload = handler(body.Params)
	}

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(payload)),
	}, nil
}

func (d *clusterDoer) methods() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []string
	for _, c := range d.calls {
		out = append(out, c.Method)
	}
	return out
}

func result(v string) (int, string) {
	return http.StatusOK, `{"jsonrpc":"2.0","result":` + v + `}`
}

const clusterHosts = `{
	"HostId<0>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-01T00:00:00Z", "aws": {"instance_id": "i-0"}},
	"HostId<1>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-02T00:00:00Z", "aws": {"instance_id": "i-1"}},
	"HostId<2>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-03T00:00:00Z", "aws": {"instance_id": "i-2"}},
	"HostId<3>": {"state": "INACTIVE", "status": "DOWN", "added_time": "2024-01-04T00:00:00Z", "aws": {"instance_id": "i-3"}},
	"HostId<9>": {"state": "ACTIVE", "status": "UP", "added_time": "2023-06-01T00:00:00Z", "aws": {"instance_id": "i-other"}}
}`

const clusterDrives = `{
	"DiskId<0>": {"host_id": "HostId<0>", "status": "ACTIVE", "uuid": "u0"},
	"DiskId<1>": {"host_id": "HostId<1>", "status": "ACTIVE", "uuid": "u1"},
	"DiskId<2>": {"host_id": "HostId<2>", "status": "INACTIVE", "uuid": "u2"},
	"DiskId<9>": {"host_id": "HostId<9>", "status": "ACTIVE", "uuid": "u9"}
}`

func newClusterDoer() *clusterDoer {
	return &clusterDoer{
		handlers: map[string]func(map[string]any) (int, string){
			"user_login": func(map[string]any) (int, string) {
				return result(`{"token_type":"Bearer","access_token":"tok","refresh_token":"r"}`)
			},
			"hosts_list": func(map[string]any) (int, string) { return result(clusterHosts) },
			"disks_list": func(map[string]any) (int, string) { return result(clusterDrives) },
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noEnv(string) (string, bool) { return "", false }

func capacity(n int) *int { return &n }

func newTestService(t *testing.T, doer *clusterDoer, store report.Store) ScaleInService {
	t.Helper()

	cfg := config.Default()
	clock := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	svc, err := NewScaleInService(&cfg, store, discardLogger(),
		WithDoer(doer),
		WithLookup(noEnv),
		WithPicker(func(int) int { return 1 }),
		WithClock(func() time.Time { return clock }),
	)
	require.NoError(t, err)
	return svc
}

func backendRequest() *model.ScaleInRequest {
	return &model.ScaleInRequest{
		InstanceIDs:     []string{"i-0", "i-1", "i-2", "i-3"},
		Username:        "operator",
		Password:        "secret",
		DesiredCapacity: capacity(1),
		Role:            model.RoleBackend,
		PrivateIPs:      []string{"10.0.0.1", "10.0.0.2"},
	}
}

// TestScaleInBackend runs a full backend invocation against the emulated control plane
func TestScaleInBackend(t *testing.T) {
	doer := newClusterDoer()
	store := report.NewMemoryStore(time.Minute)
	svc := newTestService(t, doer, store)

	resp, err := svc.ScaleIn(context.Background(), backendRequest())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"user_login",
		"hosts_list",
		"disks_list",
		"cluster_deactivate_hosts",
		"cluster_deactivate_drives",
		"cluster_remove_host",
	}, doer.methods())

	login := doer.calls[0]
	assert.Equal(t, "http://10.0.0.2:14000/api/v1", login.URL)
	assert.Empty(t, login.Authorization)
	assert.Equal(t, "operator", login.Params["username"])

	for _, c := range doer.calls[1:] {
		assert.Equal(t, "Bearer tok", c.Authorization, c.Method)
	}

	assert.Equal(t, []any{"2", "3"}, doer.calls[3].Params["host_ids"])
	assert.Equal(t, []any{"u0"}, doer.calls[4].Params["drive_uuids"])
	assert.Equal(t, "3", doer.calls[5].Params["host_id"])

	require.Len(t, resp.Hosts, 5)
	assert.Equal(t, "HostId<9>", resp.Hosts[0].HostID)
	assert.Equal(t, "HostId<0>", resp.Hosts[1].HostID)
	assert.Equal(t, []string{"i-3"}, resp.Inactive)

	rep, err := svc.LastReport(context.Background(), model.RoleBackend)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, rep.DeactivatedHosts)
	assert.Equal(t, []string{"0"}, rep.DrainedHosts)
	assert.Equal(t, []string{"3"}, rep.RemovedHosts)
	assert.Equal(t, "http://10.0.0.2:14000/api/v1", rep.Endpoint)
	assert.Empty(t, rep.Error)
	assert.Same(t, resp, rep.Response)
}

// TestScaleInClient verifies client hosts are evicted oldest first
func TestScaleInClient(t *testing.T) {
	doer := newClusterDoer()
	doer.handlers["hosts_list"] = func(map[string]any) (int, string) {
		return result(`{
			"HostId<10>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-02T00:00:00Z", "aws": {"instance_id": "c-1"}},
			"HostId<11>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-01T00:00:00Z", "aws": {"instance_id": "c-0"}},
			"HostId<12>": {"state": "ACTIVE", "status": "UP", "added_time": "2024-01-03T00:00:00Z", "aws": {"instance_id": "c-2"}}
		}`)
	}
	doer.handlers["disks_list"] = func(map[string]any) (int, string) { return result(`{}`) }

	svc := newTestService(t, doer, nil)

	_, err := svc.ScaleIn(context.Background(), &model.ScaleInRequest{
		InstanceIDs:     []string{"c-0", "c-1", "c-2"},
		DesiredCapacity: capacity(1),
		Role:            model.RoleClient,
		PrivateIPs:      []string{"10.0.1.1", "10.0.1.2"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"user_login", "hosts_list", "disks_list", "cluster_deactivate_hosts"}, doer.methods())
	assert.Equal(t, []any{"11", "10"}, doer.calls[3].Params["host_ids"])

	// no invocation credentials and no environment fall back to admin/admin
	assert.Equal(t, "admin", doer.calls[0].Params["username"])
}

// TestScaleInInvalidRequest verifies a bad event makes no control-plane call
func TestScaleInInvalidRequest(t *testing.T) {
	doer := newClusterDoer()
	svc := newTestService(t, doer, nil)

	req := backendRequest()
	req.PrivateIPs = nil

	_, err := svc.ScaleIn(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, doer.calls)
}

// TestScaleInMissingDesiredCapacity verifies an event without a target capacity scales nothing
func TestScaleInMissingDesiredCapacity(t *testing.T) {
	doer := newClusterDoer()
	svc := newTestService(t, doer, nil)

	var req model.ScaleInRequest
	require.NoError(t, json.Unmarshal([]byte(`{"instance_ids":["i-0","i-1"],"role":"backend","private_ips":["10.0.0.1"]}`), &req))

	_, err := svc.ScaleIn(context.Background(), &req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Empty(t, doer.calls)
}

// TestScaleInLoginRejected verifies a rejected login surfaces as an authentication error
func TestScaleInLoginRejected(t *testing.T) {
	doer := newClusterDoer()
	doer.handlers["user_login"] = func(map[string]any) (int, string) {
		return http.StatusUnauthorized, "Unauthorized"
	}
	store := report.NewMemoryStore(time.Minute)
	svc := newTestService(t, doer, store)

	_, err := svc.ScaleIn(context.Background(), backendRequest())
	require.Error(t, err)
	assert.True(t, jrpc.IsAuthentication(err))
	assert.Equal(t, []string{"user_login"}, doer.methods())

	rep, err := svc.LastReport(context.Background(), model.RoleBackend)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.Error)
	assert.Nil(t, rep.Response)
}

// TestScaleInRemovalHostNotFound verifies an already removed host does not fail the invocation
func TestScaleInRemovalHostNotFound(t *testing.T) {
	doer := newClusterDoer()
	doer.handlers["cluster_remove_host"] = func(map[string]any) (int, string) {
		return http.StatusOK, `{"jsonrpc":"2.0","error":{"code":-32602,"message":"Host not found"}}`
	}
	store := report.NewMemoryStore(time.Minute)
	svc := newTestService(t, doer, store)

	_, err := svc.ScaleIn(context.Background(), backendRequest())
	require.NoError(t, err)

	rep, err := svc.LastReport(context.Background(), model.RoleBackend)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, rep.AlreadyRemoved)
	assert.Empty(t, rep.RemovedHosts)
}

// TestScaleInExecutionFailure verifies a failed command aborts and keeps the partial report
func TestScaleInExecutionFailure(t *testing.T) {
	doer := newClusterDoer()
	doer.handlers["cluster_deactivate_drives"] = func(map[string]any) (int, string) {
		return http.StatusInternalServerError, "internal error"
	}
	store := report.NewMemoryStore(time.Minute)
	svc := newTestService(t, doer, store)

	_, err := svc.ScaleIn(context.Background(), backendRequest())
	require.Error(t, err)
	assert.Equal(t, jrpc.KindHTTP, jrpc.KindOf(err))
	assert.NotContains(t, doer.methods(), "cluster_remove_host")

	rep, err := svc.LastReport(context.Background(), model.RoleBackend)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, rep.DeactivatedHosts)
	assert.Empty(t, rep.DrainedHosts)
}

type failingStore struct {
	report.Store
}

func (failingStore) Save(context.Context, *report.Report) error {
	return errors.New("store unavailable")
}

// TestScaleInReportFailureNotFatal verifies a failing report sink does not fail the invocation
func TestScaleInReportFailureNotFatal(t *testing.T) {
	doer := newClusterDoer()
	svc := newTestService(t, doer, failingStore{})

	resp, err := svc.ScaleIn(context.Background(), backendRequest())
	require.NoError(t, err)
	assert.NotNil(t, resp)
}

// TestLastReportWithoutStore verifies the lookup reports not found when no sink is configured
func TestLastReportWithoutStore(t *testing.T) {
	svc := newTestService(t, newClusterDoer(), nil)

	_, err := svc.LastReport(context.Background(), model.RoleClient)
	assert.ErrorIs(t, err, report.ErrNotFound)
}
