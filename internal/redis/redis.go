// Package redis opens the client used for the session cache, the game
// snapshot mirror, and the game_events channel.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses the URL and verifies the connection with a bounded ping
func Connect(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
