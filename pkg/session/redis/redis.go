package redis

import (
	"context"
	"fmt"
	"time"

	"bank-dashboard/pkg/session"

	"github.com/redis/rueidis"
)

// RedisLayer stores session records in Redis so several dashboard
// instances can share sessions.
type RedisLayer struct {
	client rueidis.Client
	config Config
}

// Config configures the Redis layer.
type Config struct {
	Name string
	// Addr is the server address in single node mode, e.g. "localhost:6379".
	Addr string
	// ClusterAddrs enables cluster mode when set.
	ClusterAddrs []string
	Username     string
	Password     string
	// DB is the database number; cluster mode only supports 0.
	DB          int
	KeyPrefix   string
	DefaultTTL  time.Duration
	DialTimeout time.Duration
	// WriteTimeout bounds socket writes.
	WriteTimeout time.Duration
	// SentinelMasterSet and SentinelAddrs enable sentinel mode.
	SentinelMasterSet string
	SentinelAddrs     []string
	SentinelUsername  string
	SentinelPassword  string
}

// DefaultConfig returns a single-node configuration on localhost.
func DefaultConfig() Config {
	return Config{
		Name:         "L2-redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "dashboard:",
		DefaultTTL:   session.DefaultTTL,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects to Redis and pings it.
func New(config Config) (*RedisLayer, error) {
	if config.Name == "" {
		config.Name = "L2-redis"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = session.DefaultTTL
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	var initAddress []string
	switch {
	case len(config.ClusterAddrs) > 0:
		initAddress = config.ClusterAddrs
	case len(config.SentinelAddrs) > 0:
		initAddress = config.SentinelAddrs
	case config.Addr != "":
		initAddress = []string{config.Addr}
	default:
		return nil, fmt.Errorf("redis: no addresses configured (set Addr, ClusterAddrs, or SentinelAddrs)")
	}

	opts := rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         config.Username,
		Password:         config.Password,
		SelectDB:         config.DB,
		ConnWriteTimeout: config.WriteTimeout,
		// client-side caching is not used; session records change on every request
		DisableCache: true,
	}
	if len(config.SentinelAddrs) > 0 {
		opts.Sentinel = rueidis.SentinelOption{
			MasterSet: config.SentinelMasterSet,
			Username:  config.SentinelUsername,
			Password:  config.SentinelPassword,
		}
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	r := &RedisLayer{client: client, config: config}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := r.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return r, nil
}

func (r *RedisLayer) key(key string) string {
	return r.config.KeyPrefix + key
}

// Get returns the raw value stored under key.
func (r *RedisLayer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := session.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}

	return data, nil
}

// Set stores value under key with an expiry.
func (r *RedisLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := session.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}

	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes key.
func (r *RedisLayer) Delete(ctx context.Context, key string) error {
	if err := session.ValidateKey(key); err != nil {
		return err
	}

	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

// TTL returns the remaining lifetime of key, or ErrNotFound.
func (r *RedisLayer) TTL(ctx context.Context, key string) (time.Duration, error) {
	resp := r.client.Do(ctx, r.client.B().Ttl().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		return 0, fmt.Errorf("redis ttl: %w", err)
	}

	seconds, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis ttl: failed to read response: %w", err)
	}

	switch seconds {
	case -2:
		return 0, session.ErrNotFound
	case -1:
		return -1, nil
	}

	return time.Duration(seconds) * time.Second, nil
}

// Ping checks connectivity.
func (r *RedisLayer) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w: %v", session.ErrLayerUnavailable, err)
	}
	return nil
}

// Name returns the layer name.
func (r *RedisLayer) Name() string {
	return r.config.Name
}

// Close closes the client.
func (r *RedisLayer) Close() error {
	r.client.Close()
	return nil
}
