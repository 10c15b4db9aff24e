package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kirychukyurii/weka-scale-in/internal/config"
	"github.com/kirychukyurii/weka-scale-in/internal/model"
	"github.com/kirychukyurii/weka-scale-in/internal/util"
)

const defaultKeyPrefix = "weka-scale-in"

// kv is the subset of the etcd client the store uses
type kv interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Close() error
}

// EtcdStore keeps reports in etcd under <prefix>/reports/<role>, leased for ttl
type EtcdStore struct {
	client kv
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewEtcdStore connects to etcd and verifies the first endpoint answers
func NewEtcdStore(cfg *config.EtcdConfig, ttl time.Duration, logger *slog.Logger) (*EtcdStore, error) {
	etcdCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
		Username:    cfg.Username,
		Password:    cfg.Password,
	}
	if etcdCfg.DialTimeout <= 0 {
		etcdCfg.DialTimeout = 5 * time.Second
	}

	if cfg.TLS != nil {
		tlsConfig, err := util.LoadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		etcdCfg.TLS = tlsConfig
	}

	client, err := clientv3.New(etcdCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), etcdCfg.DialTimeout)
	defer cancel()

	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	logger.Info("connected to etcd cluster", "endpoints", cfg.Endpoints)

	return newEtcdStore(client, cfg.Prefix, ttl, logger), nil
}

func newEtcdStore(client kv, prefix string, ttl time.Duration, logger *slog.Logger) *EtcdStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &EtcdStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger,
	}
}

func (e *EtcdStore) key(role model.Role) string {
	return path.Join(e.prefix, "reports", string(role))
}

func (e *EtcdStore) Save(ctx context.Context, rep *Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	var opts []clientv3.OpOption
	if e.ttl > 0 {
		lease, err := e.client.Grant(ctx, int64(e.ttl.Seconds()))
		if err != nil {
			return fmt.Errorf("failed to grant report lease: %w", err)
		}
		opts = append(opts, clientv3.WithLease(lease.ID))
	}

	key := e.key(rep.Role)
	if _, err := e.client.Put(ctx, key, string(data), opts...); err != nil {
		return fmt.Errorf("failed to write report to etcd: %w", err)
	}

	e.logger.Debug("wrote report to etcd", "key", key)

	return nil
}

func (e *EtcdStore) Last(ctx context.Context, role model.Role) (*Report, error) {
	resp, err := e.client.Get(ctx, e.key(role))
	if err != nil {
		return nil, fmt.Errorf("failed to read report from etcd: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}

	var rep Report
	if err := json.Unmarshal(resp.Kvs[0].Value, &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &rep, nil
}

func (e *EtcdStore) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Open returns the etcd store when configured, otherwise the in-memory store
func Open(cfg config.ReportConfig, logger *slog.Logger) (Store, error) {
	if cfg.Etcd == nil {
		return NewMemoryStore(cfg.TTL), nil
	}
	return NewEtcdStore(cfg.Etcd, cfg.TTL, logger)
}
