package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Queue accepts messages for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// DirectQueue delivers messages synchronously through a Sender. It is used
// when no Pub/Sub topic is configured.
type DirectQueue struct {
	sender Sender
}

// NewDirectQueue creates a queue that sends immediately.
func NewDirectQueue(sender Sender) *DirectQueue {
	return &DirectQueue{sender: sender}
}

// Enqueue sends msg right away.
func (q *DirectQueue) Enqueue(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return q.sender.Send(ctx, msg)
}

// Publisher publishes raw job payloads and returns the server message ID.
type Publisher interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

// PubSubQueue publishes send_email jobs for the worker.
type PubSubQueue struct {
	publisher Publisher
	logger    zerolog.Logger
}

// NewPubSubQueue creates a queue backed by publisher.
func NewPubSubQueue(publisher Publisher, logger zerolog.Logger) *PubSubQueue {
	return &PubSubQueue{
		publisher: publisher,
		logger:    logger.With().Str("component", "mail_queue").Logger(),
	}
}

// Enqueue publishes msg as a send_email job.
func (q *PubSubQueue) Enqueue(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(Job{JobType: JobTypeSendEmail, Email: msg})
	if err != nil {
		return fmt.Errorf("encode email job: %w", err)
	}

	id, err := q.publisher.Publish(ctx, data)
	if err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}

	q.logger.Debug().Str("message_id", id).Str("subject", msg.Subject).Msg("email job published")
	return nil
}

// TopicPublisher publishes to a Pub/Sub topic.
type TopicPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// NewTopicPublisher connects to Pub/Sub and opens a publisher for topic.
func NewTopicPublisher(ctx context.Context, projectID, topic string) (*TopicPublisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &TopicPublisher{client: client, publisher: client.Publisher(topic)}, nil
}

// Publish implements Publisher and blocks until the server acknowledges.
func (p *TopicPublisher) Publish(ctx context.Context, data []byte) (string, error) {
	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"job_type": JobTypeSendEmail},
	})
	return result.Get(ctx)
}

// Close flushes pending messages and closes the client.
func (p *TopicPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}
