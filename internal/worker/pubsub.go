package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/ecoshield360/ecoshield/internal/mail"
)

// Disposition tells the subscriber what to do with a processed message.
type Disposition int

const (
	// Ack removes the message from the subscription.
	Ack Disposition = iota
	// Nack asks for redelivery.
	Nack
)

func (d Disposition) String() string {
	if d == Nack {
		return "nack"
	}
	return "ack"
}

// JobProcessor handles decoded job payloads.
type JobProcessor struct {
	sender  mail.Sender
	timeout time.Duration
	logger  zerolog.Logger
}

// NewJobProcessor creates a processor that delivers email through sender.
func NewJobProcessor(sender mail.Sender, timeout time.Duration, logger zerolog.Logger) *JobProcessor {
	if timeout <= 0 {
		timeout = DefaultConfig().JobTimeout
	}
	return &JobProcessor{sender: sender, timeout: timeout, logger: logger}
}

// Process runs the job in data. Payloads that can never succeed are acked
// so they are not redelivered forever; delivery failures are nacked.
func (p *JobProcessor) Process(ctx context.Context, data []byte) Disposition {
	var job mail.Job
	if err := json.Unmarshal(data, &job); err != nil {
		p.logger.Error().Err(err).Msg("failed to parse message")
		return Ack
	}

	if job.JobType != mail.JobTypeSendEmail {
		p.logger.Warn().Str("job_type", job.JobType).Msg("unknown job type")
		return Ack
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sender.Send(ctx, job.Email); err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			p.logger.Error().Err(err).Msg("dropping undeliverable email")
			return Ack
		}
		p.logger.Error().Err(err).Msg("email delivery failed")
		return Nack
	}
	return Ack
}

// PubSubHandler receives jobs from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *JobProcessor
	logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg Config, processor *JobProcessor, logger zerolog.Logger) (*PubSubHandler, error) {
	cfg = cfg.withDefaults()

	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = cfg.MaxOutstandingMessages
	subscriber.ReceiveSettings.MaxExtension = cfg.MaxExtension

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        processor,
		logger:           logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	d := h.processor.Process(logger.WithContext(ctx), msg.Data)
	if d == Nack {
		msg.Nack()
	} else {
		msg.Ack()
	}

	logger.Info().
		Stringer("disposition", d).
		Dur("duration", time.Since(startTime)).
		Msg("job handled")
}
