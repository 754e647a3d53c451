package server

import (
	"context"
	"time"

	"github.com/mediocregopher/radix/v3"
)

const onlineSetKey = "online"

//Presence keeps the set of currently authenticated users in redis, so the
//surrounding application can answer "who is online" without touching the
//broker process.
type Presence struct {
	redis  radix.Client
	logger *Logger
}

func NewPresence(redis radix.Client, logger *Logger) *Presence {
	return &Presence{
		redis:  redis,
		logger: logger,
	}
}

func (p *Presence) SetOnline(userID string) {
	if err := p.redis.Do(radix.Cmd(nil, "SADD", onlineSetKey, userID)); err != nil {
		p.logger.Errorw("Couldn't mark user online", "userID", userID, "error", err)
	}
}

func (p *Presence) SetOffline(userID string) {
	if err := p.redis.Do(radix.Cmd(nil, "SREM", onlineSetKey, userID)); err != nil {
		p.logger.Errorw("Couldn't mark user offline", "userID", userID, "error", err)
	}
}

func (p *Presence) OnlineCount() (int, error) {
	var count int
	err := p.redis.Do(radix.Cmd(&count, "SCARD", onlineSetKey))
	return count, err
}

//WatchOnline emits the online user count periodically until the context is
//cancelled.
func (p *Presence) WatchOnline(ctx context.Context, interval time.Duration) <-chan int {

	watchChan := make(chan int)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				close(watchChan)
				return
			case <-ticker.C:
				count, err := p.OnlineCount()
				if err != nil {
					p.logger.Errorw("Couldn't read online user count", "error", err)
					continue
				}
				select {
				case watchChan <- count:
				case <-ctx.Done():
					close(watchChan)
					return
				}
			}
		}
	}()

	return watchChan

}

func ConnectRedis(config *Config, logger *Logger) *radix.Pool {

	pool, err := radix.NewPool("tcp", config.RedisConfig.ConnString, config.RedisConfig.PoolSize)
	if err != nil {
		logger.Fatalw("Cannot connect redis", "error", err)
	}
	logger.Info("Redis connection completed")
	return pool

}
