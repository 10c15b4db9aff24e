package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/kirychukyurii/weka-scale-in/internal/config"
	"github.com/kirychukyurii/weka-scale-in/internal/credentials"
	"github.com/kirychukyurii/weka-scale-in/internal/executor"
	"github.com/kirychukyurii/weka-scale-in/internal/jrpc"
	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/planner"
	"github.com/kirychukyurii/weka-scale-in/internal/report"
	"github.com/kirychukyurii/weka-scale-in/internal/snapshot"
	"github.com/kirychukyurii/weka-scale-in/internal/util"
)

// ErrInvalidRequest wraps every rejection of the invocation event itself
var ErrInvalidRequest = errors.New("invalid scale-in request")

// ScaleInService defines the interface for scale-in operations
type ScaleInService interface {
	// ScaleIn runs one invocation: login, snapshot, plan, execute
	ScaleIn(ctx context.Context, req *model.ScaleInRequest) (*model.ScaleInResponse, error)

	// LastReport returns the latest published report of role
	LastReport(ctx context.Context, role model.Role) (*report.Report, error)
}

// Option configures the scale-in service
type Option func(*scaleInService)

// WithDoer replaces the HTTP client used for control-plane calls
func WithDoer(d jrpc.Doer) Option {
	return func(s *scaleInService) {
		s.doer = d
	}
}

// WithLookup replaces the environment lookup used for credentials
func WithLookup(lookup credentials.LookupFunc) Option {
	return func(s *scaleInService) {
		s.lookup = lookup
	}
}

// WithPicker replaces the random choice of private IP. pick receives the
// number of candidates and returns an index.
func WithPicker(pick func(n int) int) Option {
	return func(s *scaleInService) {
		s.pick = pick
	}
}

// WithClock replaces time.Now for report timestamps
func WithClock(now func() time.Time) Option {
	return func(s *scaleInService) {
		s.now = now
	}
}

// scaleInService implements ScaleInService interface
type scaleInService struct {
	controlPlane config.ControlPlaneConfig
	fallback     credentials.Credentials
	lookup       credentials.LookupFunc
	doer         jrpc.Doer
	store        report.Store
	pick         func(n int) int
	now          func() time.Time
	logger       *slog.Logger
}

// NewScaleInService creates a new scale-in service
func NewScaleInService(cfg *config.Config, store report.Store, logger *slog.Logger, opts ...Option) (ScaleInService, error) {
	s := &scaleInService{
		controlPlane: cfg.ControlPlane,
		fallback: credentials.Credentials{
			Org:      cfg.Credentials.Org,
			Username: cfg.Credentials.Username,
			Password: cfg.Credentials.Password,
		},
		store:  store,
		pick:   rand.IntN,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.doer == nil {
		tlsConfig, err := util.LoadTLSConfig(cfg.ControlPlane.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load control plane TLS config: %w", err)
		}
		s.doer = jrpc.NewHTTPClient(cfg.ControlPlane.Timeout, tlsConfig)
	}

	return s, nil
}

// endpoint returns the configured management endpoint of host
func (s *scaleInService) endpoint(host string) jrpc.Endpoint {
	return jrpc.Endpoint{
		Scheme: s.controlPlane.Scheme,
		Host:   host,
		Port:   s.controlPlane.Port,
		Path:   s.controlPlane.Path,
	}
}

func (s *scaleInService) ScaleIn(ctx context.Context, req *model.ScaleInRequest) (*model.ScaleInResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	creds, source := credentials.Resolve(req.Username, req.Password, s.lookup, s.fallback)
	host := req.PrivateIPs[s.pick(len(req.PrivateIPs))]

	client := jrpc.New(s.endpoint(host), creds,
		jrpc.WithDoer(s.doer),
		jrpc.WithLogger(s.logger),
		jrpc.WithLoginDefaults(s.endpoint("")),
	)

	log := s.logger.With(
		slog.String("role", string(req.Role)),
		slog.String("host", host),
	)
	log.Info("starting scale-in",
		slog.Int("desired_capacity", req.Capacity()),
		slog.Int("instances", len(req.InstanceIDs)),
		slog.String("credentials", string(source)),
	)

	rep := &report.Report{
		Role:            req.Role,
		Endpoint:        client.Endpoint().String(),
		DesiredCapacity: req.Capacity(),
		StartedAt:       s.now(),
	}

	resp, err := s.run(ctx, client, req, rep, log)

	rep.FinishedAt = s.now()
	rep.Endpoint = client.Endpoint().String()
	if err != nil {
		rep.Error = err.Error()
	}
	rep.Response = resp
	s.publish(ctx, rep)

	if err != nil {
		log.Error("scale-in failed",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return resp, nil
}

func (s *scaleInService) run(ctx context.Context, client *jrpc.Client, req *model.ScaleInRequest, rep *report.Report, log *slog.Logger) (*model.ScaleInResponse, error) {
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("failed to log in to %s: %w", client.Endpoint().Host, err)
	}

	snap, err := snapshot.Build(ctx, client, req.InstanceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build cluster snapshot: %w", err)
	}

	plan, err := planner.Compute(snap, req.Role, req.Capacity())
	if err != nil {
		return nil, fmt.Errorf("failed to plan scale-in: %w", err)
	}

	log.Info("computed scale-in plan",
		slog.Int("group", len(snap.Group)),
		slog.Int("active", len(snap.Active)),
		slog.Int("deactivating", len(snap.Deactivating)),
		slog.Int("inactive", len(snap.Inactive)),
		slog.Int("excess", plan.Excess),
	)

	res, err := executor.New(client, log).Execute(ctx, plan)
	if res != nil {
		rep.DeactivatedHosts = res.DeactivatedHosts
		rep.DrainedHosts = res.DrainedHosts
		rep.RemovedHosts = res.RemovedHosts
		rep.AlreadyRemoved = res.AlreadyRemoved
	}
	if err != nil {
		return nil, err
	}

	if plan.Empty() {
		log.Info("nothing to scale in")
	}

	return snap.Response(), nil
}

// publish saves the report; failures are logged only
func (s *scaleInService) publish(ctx context.Context, rep *report.Report) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, rep); err != nil {
		s.logger.Warn("failed to publish scale-in report",
			slog.String("role", string(rep.Role)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *scaleInService) LastReport(ctx context.Context, role model.Role) (*report.Report, error) {
	if s.store == nil {
		return nil, report.ErrNotFound
	}
	return s.store.Last(ctx, role)
}
