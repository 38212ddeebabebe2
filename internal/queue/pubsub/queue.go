// Package pubsub backs the job queue with Google Cloud Pub/Sub so
// scheduling and scraping can run in separate processes.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/knowvault/linkcycle/internal/links"
)

// Queue publishes queue items to a topic and pulls them from a
// subscription on that topic.
type Queue struct {
	client   *pubsub.Client
	topic    *pubsub.Topic
	sub      *pubsub.Subscription
	logger   *zap.Logger
	delivery chan links.QueueItem
	cancel   context.CancelFunc
}

// NewQueue connects to Pub/Sub and verifies the topic and subscription
// exist. It authenticates with Application Default Credentials.
func NewQueue(ctx context.Context, projectID, topicID, subscriptionID string, logger *zap.Logger) (*Queue, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %q: %w", topicID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}

	sub := client.Subscription(subscriptionID)
	ok, err = sub.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check subscription %q: %w", subscriptionID, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", subscriptionID, projectID)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		client:   client,
		topic:    topic,
		sub:      sub,
		logger:   logger,
		delivery: make(chan links.QueueItem, 64),
		cancel:   cancel,
	}
	go q.receive(recvCtx)
	return q, nil
}

// Enqueue publishes the item as JSON and waits for the server ack.
func (q *Queue) Enqueue(ctx context.Context, item links.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_id": item.JobID},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue returns the next delivered item. Items are acked at delivery,
// so a crash between delivery and completion loses the attempt; the
// scheduler re-dispatches the link on its next interval.
func (q *Queue) Dequeue(ctx context.Context) (links.QueueItem, error) {
	select {
	case <-ctx.Done():
		return links.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.delivery:
		if !ok {
			return links.QueueItem{}, fmt.Errorf("queue closed")
		}
		return item, nil
	}
}

// receive pumps subscription messages into the delivery channel.
// Undecodable messages are acked and dropped so they cannot wedge the
// subscription with endless redelivery.
func (q *Queue) receive(ctx context.Context) {
	err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var item links.QueueItem
		if err := json.Unmarshal(msg.Data, &item); err != nil {
			q.logger.Warn("dropping undecodable queue message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			msg.Ack()
			return
		}
		select {
		case q.delivery <- item:
			msg.Ack()
		case <-msgCtx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		q.logger.Error("pubsub receive stopped", zap.Error(err))
	}
	close(q.delivery)
}

// Close stops receiving and releases the client connection.
func (q *Queue) Close() error {
	q.cancel()
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
