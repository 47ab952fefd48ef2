package realtime

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "ckt:rt:"

// RedisFanout publishes events on Redis pub/sub so every process sees every
// room. Pair it with RunBridge to feed the local Hub.
type RedisFanout struct {
	rdb *redis.Client
}

func NewRedisFanout(rdb *redis.Client) *RedisFanout { return &RedisFanout{rdb: rdb} }

func (f *RedisFanout) Publish(ctx context.Context, room string, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return f.rdb.Publish(ctx, channelPrefix+room, b).Err()
}

// RunBridge subscribes to every fanout channel and delivers into the hub.
// Blocks until ctx is done; run it in its own goroutine.
func RunBridge(ctx context.Context, rdb *redis.Client, hub *Hub) {
	sub := rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[RT] bad event payload: %v", err)
				continue
			}
			hub.Deliver(strings.TrimPrefix(msg.Channel, channelPrefix), ev)
		}
	}
}
