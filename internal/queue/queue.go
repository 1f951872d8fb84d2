package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/config"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/internal/logging"
	"github.com/ayyanulhaq997-cmd/Flenix-sub001/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	EncodeQueueName = "encode_jobs"
	ExchangeName    = "encode"
)

// Queue provides message queue operations
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logging.Logger

	// amqp channels must not be published to concurrently
	publishMu sync.Mutex
}

// New creates a new queue client and declares the encode topology
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{
		conn:    conn,
		channel: channel,
		logger:  logger.WithComponent("queue"),
	}

	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	// Declare exchange
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := q.setupDeadLetterQueue(); err != nil {
		return err
	}

	// Declare queue; rejected messages are dead-lettered
	_, err = q.channel.QueueDeclare(
		EncodeQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-dead-letter-exchange":    DeadLetterExchangeName,
			"x-dead-letter-routing-key": DeadLetterQueueName,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = q.channel.QueueBind(
		EncodeQueueName,
		EncodeQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishJob publishes an encode job description to the queue
func (q *Queue) PublishJob(ctx context.Context, desc *models.EncodeJobDescription) error {
	body, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal job description: %w", err)
	}

	q.publishMu.Lock()
	defer q.publishMu.Unlock()

	err = q.channel.PublishWithContext(ctx,
		ExchangeName,
		EncodeQueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode:  amqp.Persistent,
			ContentType:   "application/json",
			CorrelationId: desc.JobID,
			Body:          body,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}

	return nil
}

// ConsumeJobs starts consuming encode jobs. A job the handler fails on, or
// one that cannot be decoded, is dead-lettered rather than requeued.
func (q *Queue) ConsumeJobs(ctx context.Context, prefetch int, handler func(context.Context, *models.EncodeJobDescription) error) error {
	if prefetch < 1 {
		prefetch = 1
	}

	// Set QoS to limit concurrent processing
	err := q.channel.Qos(
		prefetch, // prefetch count
		0,        // prefetch size
		false,    // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		EncodeQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				q.handle(ctx, msg, handler)
			}
		}
	}()

	return nil
}

func (q *Queue) handle(ctx context.Context, msg amqp.Delivery, handler func(context.Context, *models.EncodeJobDescription) error) {
	desc, err := decodeJob(msg.Body)
	if err != nil {
		q.logger.WithError(err).Warn("Dead-lettering undecodable encode job")
		msg.Nack(false, false)
		return
	}

	if err := handler(ctx, desc); err != nil {
		q.logger.WithJobID(desc.JobID).WithError(err).Error("Encode job failed")
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
}

func decodeJob(body []byte) (*models.EncodeJobDescription, error) {
	var desc models.EncodeJobDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job description: %w", err)
	}
	if desc.JobID == "" || desc.InputKey == "" {
		return nil, fmt.Errorf("job description missing job id or input key")
	}
	return &desc, nil
}
