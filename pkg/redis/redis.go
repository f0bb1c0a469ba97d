package redis

import (
	"context"
	"fmt"
	"net"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

type Redis interface {
	Client() *goredis.Client
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Host     string
	Port     uint16
	Password string
	DB       int
}

type rdb struct {
	client *goredis.Client
}

// New does not dial; the client connects lazily and Ping reports reachability.
func New(cfg *Config) (Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port))),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &rdb{client: client}, nil
}

func (r *rdb) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (r *rdb) Client() *goredis.Client {
	return r.client
}

func (r *rdb) Close() error {
	return r.client.Close()
}
