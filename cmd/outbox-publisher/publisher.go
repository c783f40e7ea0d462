package main

import (
	"context"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers hands out one ordered publisher per topic.
type topicPublishers struct {
	client pubSubClient
	mu     sync.Mutex
	byName map[string]publisher
}

func newTopicPublishers(client pubSubClient) *topicPublishers {
	return &topicPublishers{client: client, byName: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byName[topic]; ok {
		return pub
	}
	raw := t.client.Publisher(topic)
	if raw == nil {
		return nil
	}
	raw.EnableMessageOrdering = true
	pub := orderedPublisher{raw: raw}
	t.byName[topic] = pub
	return pub
}

type orderedPublisher struct {
	raw *gcppubsub.Publisher
}

func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return orderedResult{
		result: p.raw.Publish(ctx, msg),
		raw:    p.raw,
		key:    msg.OrderingKey,
	}
}

type orderedResult struct {
	result *gcppubsub.PublishResult
	raw    *gcppubsub.Publisher
	key    string
}

// Get waits for the server ack. A failed publish pauses its ordering key
// until resumed, so it is resumed here for the retry.
func (r orderedResult) Get(ctx context.Context) (string, error) {
	id, err := r.result.Get(ctx)
	if err != nil && r.key != "" {
		r.raw.ResumePublish(r.key)
	}
	return id, err
}
