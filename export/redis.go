package export

import (
	"context"
	"fmt"

	"github.com/achilleasa/polaris-cir/log"
	"github.com/achilleasa/polaris-cir/stats"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	// Default key prefix for published record lists.
	DefaultRedisPrefix = "cir"

	// Number of lines pushed per RPUSH call.
	DefaultBatchSize = 1000
)

// RedisLister abstracts the minimal list surface we need from a Redis client.
type RedisLister interface {
	RPush(ctx context.Context, key string, values ...interface{}) error
}

// GoRedisLister wraps a go-redis client and implements RedisLister.
type GoRedisLister struct{ c *redis.Client }

// Create a lister connected to a Redis server at addr ("host:port").
func NewGoRedisLister(addr string) *GoRedisLister {
	opt := &redis.Options{Addr: addr}
	return &GoRedisLister{c: redis.NewClient(opt)}
}

func (g *GoRedisLister) RPush(ctx context.Context, key string, values ...interface{}) error {
	return g.c.RPush(ctx, key, values...).Err()
}

// Close the underlying client.
func (g *GoRedisLister) Close() error {
	return g.c.Close()
}

// A RedisSink publishes exported records as JSONL lines to a Redis list.
// All publishes of a sink share a session key of the form "<prefix>:<session>".
type RedisSink struct {
	logger    log.Logger
	client    RedisLister
	key       string
	batchSize int
}

// Create a new sink that appends to a list keyed by prefix and a fresh
// session id. If prefix is empty, DefaultRedisPrefix is used.
func NewRedisSink(client RedisLister, prefix string) *RedisSink {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisSink{
		logger:    log.New("export"),
		client:    client,
		key:       fmt.Sprintf("%s:%s", prefix, uuid.NewString()),
		batchSize: DefaultBatchSize,
	}
}

// Get the list key used by this sink.
func (s *RedisSink) Key() string {
	return s.key
}

// Append the static parameters followed by one line per record to the
// sink's list and return the number of lines pushed.
func (s *RedisSink) Publish(ctx context.Context, params stats.StaticParameters, records []stats.PathRecord) (int, error) {
	if len(records) == 0 {
		return 0, ErrNoRecords
	}

	lines, err := EncodeLines(params, records)
	if err != nil {
		return 0, err
	}

	pushed := 0
	for start := 0; start < len(lines); start += s.batchSize {
		end := min(start+s.batchSize, len(lines))
		batch := make([]interface{}, 0, end-start)
		for _, line := range lines[start:end] {
			batch = append(batch, line)
		}
		if err = s.client.RPush(ctx, s.key, batch...); err != nil {
			s.logger.Errorf("failed to publish paths to %q after %d lines: %v", s.key, pushed, err)
			return pushed, fmt.Errorf("export: publishing to %q: %w", s.key, err)
		}
		pushed += len(batch)
	}

	s.logger.Infof("published %d paths to %q", len(records), s.key)
	return pushed, nil
}
