package images

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/feedgraph/apiserver/internal/mq"
	"github.com/feedgraph/apiserver/internal/storage"
)

// Queue carries removal requests to Cleaner.Run.
type Queue interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

type removal struct {
	Key string `json:"key"`
}

// Cleaner removes images that are no longer referenced. Removal is best
// effort: callers never wait for it and failures are only logged.
type Cleaner struct {
	objects Objects
	logger  *slog.Logger
	queue   Queue
	channel string
	wg      sync.WaitGroup
}

// NewCleaner returns a Cleaner. With a nil queue every removal runs in its
// own goroutine.
func NewCleaner(objects Objects, logger *slog.Logger, queue Queue, channel string) *Cleaner {
	return &Cleaner{objects: objects, logger: logger, queue: queue, channel: channel}
}

// Remove schedules deletion of the image at the public path p and returns
// immediately. Empty paths are ignored.
func (c *Cleaner) Remove(ctx context.Context, p string) {
	if p == "" {
		return
	}
	key, err := KeyFromPath(p)
	if err != nil {
		c.logger.Warn("skip image removal", "path", p, "error", err)
		return
	}

	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if c.queue != nil {
			if c.publish(ctx, key) {
				return
			}
		}
		c.delete(ctx, key)
	}()
}

// Run consumes removal requests from the queue until ctx is done. Without a
// queue it returns immediately.
func (c *Cleaner) Run(ctx context.Context) error {
	if c.queue == nil {
		return nil
	}
	err := c.queue.Subscribe(ctx, c.channel, func(ctx context.Context, msg mq.Message) error {
		var req removal
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.logger.Error("drop malformed removal request", "messageId", msg.ID, "error", err)
			return nil
		}
		c.delete(ctx, req.Key)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Wait blocks until every scheduled removal has been handed off.
func (c *Cleaner) Wait() {
	c.wg.Wait()
}

func (c *Cleaner) publish(ctx context.Context, key string) bool {
	data, err := json.Marshal(removal{Key: key})
	if err != nil {
		return false
	}
	if _, err := c.queue.Publish(ctx, c.channel, data, map[string]string{"key": key}); err != nil {
		c.logger.Warn("publish image removal failed, deleting inline", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cleaner) delete(ctx context.Context, key string) {
	if err := c.objects.Delete(ctx, key); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			c.logger.Warn("image already removed", "key", key)
			return
		}
		c.logger.Error("remove image failed", "key", key, "error", err)
		return
	}
	c.logger.Info("image removed", "key", key)
}
