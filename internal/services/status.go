package services

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"river-backend/internal/models"
)

// StatusPublisher reports pipeline progress to whoever owns the request.
type StatusPublisher interface {
	Publish(ctx context.Context, owner models.Owner, update models.StatusUpdate)
}

type RedisStatusPublisher struct {
	redis *redis.Client
	log   *logrus.Logger
}

func NewRedisStatusPublisher(client *redis.Client, log *logrus.Logger) *RedisStatusPublisher {
	return &RedisStatusPublisher{redis: client, log: log}
}

// Publish sends a WebSocket update via Redis pub/sub. Delivery is best effort.
func (p *RedisStatusPublisher) Publish(ctx context.Context, owner models.Owner, update models.StatusUpdate) {
	channel := models.StatusChannel(owner)
	if channel == "" {
		return
	}

	data, err := json.Marshal(models.WSMessage{Type: "status_update", Payload: update})
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, channel, string(data)).Err(); err != nil {
		p.log.WithError(err).WithField("stage", update.Stage).Debug("status publish failed")
	}
}
