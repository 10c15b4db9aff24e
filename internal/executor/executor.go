// Package executor replays a scale-in plan against the control plane.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kirychukyurii/weka-scale-in/internal/jrpc"
	"github.com/kirychukyurii/weka-scale-in/internal/planner"
)

const (
	MethodDeactivateHosts  = "cluster_deactivate_hosts"
	MethodDeactivateDrives = "cluster_deactivate_drives"
	MethodRemoveHost       = "cluster_remove_host"
)

// Caller performs one JSON-RPC call. *jrpc.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params, result any) (http.Header, error)
}

// Result summarizes what was issued
type Result struct {
	DeactivatedHosts []string
	DrainedHosts     []string
	RemovedHosts     []string
	// AlreadyRemoved lists hosts the control plane no longer knew about
	AlreadyRemoved []string
}

// Executor issues plan commands sequentially
type Executor struct {
	caller Caller
	logger *slog.Logger
}

// New creates an executor
func New(caller Caller, logger *slog.Logger) *Executor {
	return &Executor{
		caller: caller,
		logger: logger,
	}
}

// Execute issues, in order: one cluster_deactivate_hosts for the host set, one
// cluster_deactivate_drives per drive batch, and one cluster_remove_host per
// inactive host. A removal failing with "host not found" is logged and skipped;
// any other failure stops execution and is returned along with the partial result.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan) (*Result, error) {
	res := &Result{}

	if len(plan.HostIDsToDeactivate) > 0 {
		params := map[string]any{
			"host_ids":                 plan.HostIDsToDeactivate,
			"no_wait":                  false,
			"skip_resource_validation": false,
		}
		if _, err := e.caller.Call(ctx, MethodDeactivateHosts, params, nil); err != nil {
			return res, fmt.Errorf("failed to deactivate hosts %v: %w", plan.HostIDsToDeactivate, err)
		}
		res.DeactivatedHosts = plan.HostIDsToDeactivate

		e.logger.Info("deactivating hosts",
			slog.String("role", string(plan.Role)),
			slog.Any("host_ids", plan.HostIDsToDeactivate),
		)
	}

	for _, batch := range plan.DriveBatches {
		params := map[string]any{"drive_uuids": batch.DriveUUIDs}
		if _, err := e.caller.Call(ctx, MethodDeactivateDrives, params, nil); err != nil {
			return res, fmt.Errorf("failed to deactivate drives of host %s: %w", batch.HostID, err)
		}
		res.DrainedHosts = append(res.DrainedHosts, batch.HostID)

		e.logger.Info("deactivating drives",
			slog.String("host_id", batch.HostID),
			slog.Int("drives", len(batch.DriveUUIDs)),
		)
	}

	for _, hostID := range plan.HostIDsToRemove {
		_, err := e.caller.Call(ctx, MethodRemoveHost, map[string]any{"host_id": hostID}, nil)
		if jrpc.IsNotFound(err) {
			e.logger.Debug("host already removed",
				slog.String("host_id", hostID),
			)
			res.AlreadyRemoved = append(res.AlreadyRemoved, hostID)
			continue
		}
		if err != nil {
			return res, fmt.Errorf("failed to remove host %s: %w", hostID, err)
		}
		res.RemovedHosts = append(res.RemovedHosts, hostID)

		e.logger.Info("removed inactive host",
			slog.String("host_id", hostID),
		)
	}

	return res, nil
}
