package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/tracing"
)

const (
	DefaultRedisChannel = "codewatch:events"
	redisPingTimeout    = 2 * time.Second
)

// RedisPublisher broadcasts events on a pub/sub channel for dashboards that
// run in other processes.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	log     logger.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, log logger.Logger) *RedisPublisher {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisPublisher{rdb: rdb, channel: channel, log: log}
}

// NewRedisPublisherFromURL parses a redis:// URL and checks the server is
// reachable.
func NewRedisPublisherFromURL(ctx context.Context, url, channel string, log logger.Logger) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	p := NewRedisPublisher(redis.NewClient(opt), channel, log)
	if err := p.Ping(ctx); err != nil {
		_ = p.rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return p, nil
}

func (p *RedisPublisher) Name() string {
	return "redis"
}

func (p *RedisPublisher) Publish(ctx context.Context, event dto.Event) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RedisPublisher.Publish")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagComponentEventBus(span)
	tracing.TagEntity(span, event.Id)

	body, err := json.Marshal(event)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "marshal event")
	}

	receivers, err := p.rdb.Publish(ctx, p.channel, body).Result()
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "redis PUBLISH")
	}
	span.SetTag("receivers", receivers)
	p.log.Debugf("Published %s to %s (%d receivers)", event.Type, p.channel, receivers)
	return nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
