package worker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"chatvault/internal/redis"
)

const redisCancelChannel = "chatvault:titles:cancel"

type cancelMessage struct {
	Origin string `json:"origin"`
	UserID string `json:"user_id"`
}

// cancelBus fans user cancellations out over redis pub/sub so every
// instance drops the queued title jobs of a deleted account.
type cancelBus struct {
	client *redis.Client
	origin string
	pubsub *goredis.PubSub
}

func newCancelBus(client *redis.Client) *cancelBus {
	return &cancelBus{client: client, origin: uuid.NewString()}
}

// listen subscribes and calls handler for every peer message.
func (b *cancelBus) listen(handler func(userID string)) {
	raw := b.client.Raw()
	if raw == nil || handler == nil {
		return
	}
	b.pubsub = raw.Subscribe(context.Background(), redisCancelChannel)
	// wait for the subscription to be confirmed before returning
	if _, err := b.pubsub.Receive(context.Background()); err != nil {
		log.Printf("[titles] subscribe to %s failed: %v", redisCancelChannel, err)
		return
	}
	ch := b.pubsub.Channel()
	go func() {
		for msg := range ch {
			var cm cancelMessage
			if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
				log.Printf("[titles] cancel message decode failed: %v", err)
				continue
			}
			if cm.Origin == b.origin || cm.UserID == "" {
				continue
			}
			handler(cm.UserID)
		}
	}()
}

func (b *cancelBus) publish(userID string) {
	raw := b.client.Raw()
	if raw == nil {
		return
	}
	payload, err := json.Marshal(cancelMessage{Origin: b.origin, UserID: userID})
	if err != nil {
		log.Printf("[titles] cancel message marshal failed: %v", err)
		return
	}
	if err := raw.Publish(context.Background(), redisCancelChannel, payload).Err(); err != nil {
		log.Printf("[titles] publish cancel failed: %v", err)
	}
}

func (b *cancelBus) close() {
	if b.pubsub != nil {
		_ = b.pubsub.Close()
	}
}
