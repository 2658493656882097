package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/streadway/amqp"

	"github.com/unclebandit/targetup-dispatch/pkg/retry"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes and consumes campaign jobs on RabbitMQ. Each topic is
// a durable queue on the default exchange with a "<topic>.dlq" dead letter
// queue for jobs that ran out of retries.
type AMQPQueue struct {
	conn       *amqp.Connection
	pub        *amqp.Channel
	pubMu      sync.Mutex
	retry      retry.Config
	maxRetries int
	prefetch   int
	workers    int
	logger     *slog.Logger
	requeue    func(ctx context.Context, topic string, body []byte, retries int32) error

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type AMQPOptions struct {
	Retry      retry.Config
	MaxRetries int
	Prefetch   int
	Workers    int
}

func DialAMQP(url string, opts AMQPOptions, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &AMQPQueue{
		conn:       conn,
		pub:        pub,
		retry:      opts.Retry,
		maxRetries: opts.MaxRetries,
		prefetch:   opts.Prefetch,
		workers:    opts.Workers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
	q.requeue = q.publish
	return q, nil
}

// acknowledger settles a delivery; amqp.Delivery implements it.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
	Reject(requeue bool) error
}

func declareTopic(ch *amqp.Channel, topic string) error {
	dlq := topic + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return err
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	_, err := ch.QueueDeclare(
		topic, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	)
	return err
}

// Publish retries transient broker errors before giving up.
func (q *AMQPQueue) Publish(ctx context.Context, topic string, job CampaignJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.publish(ctx, topic, body, 0)
}

func (q *AMQPQueue) publish(ctx context.Context, topic string, body []byte, retries int32) error {
	return retry.Do(ctx, q.retry, func() error {
		q.pubMu.Lock()
		defer q.pubMu.Unlock()
		if err := declareTopic(q.pub, topic); err != nil {
			return fmt.Errorf("declare %s: %w", topic, err)
		}
		return q.pub.Publish("", topic, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryHeader: retries},
			Body:         body,
		})
	})
}

// Subscribe starts the consumers and returns. Each delivery is retried in
// process with backoff first. A job that still fails is republished with an
// incremented retry header; once the retries are spent it is rejected into
// the dead letter queue.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return err
	}
	if err := declareTopic(ch, topic); err != nil {
		ch.Close()
		return fmt.Errorf("queue setup failed: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("qos configuration failed: %w", err)
	}
	deliveries, err := ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return err
	}

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-q.ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					q.handle(topic, d.Body, d.Headers, d, handler)
				}
			}
		}()
	}

	go func() {
		<-q.ctx.Done()
		ch.Close()
	}()
	return nil
}

func (q *AMQPQueue) handle(topic string, body []byte, headers amqp.Table, d acknowledger, handler Handler) {
	var job CampaignJob
	if err := json.Unmarshal(body, &job); err != nil {
		q.logger.Warn("invalid job", "error", err)
		d.Reject(false)
		return
	}

	attempt := 0
	err := retry.Do(q.ctx, q.retry, func() error {
		attempt++
		err := handler(q.ctx, job)
		if err != nil && !errors.Is(err, ErrSkipJob) {
			q.logger.Warn("job failed", "campaign_id", job.CampaignID, "attempt", attempt, "error", err)
		}
		return err
	})
	if err == nil || errors.Is(err, ErrSkipJob) {
		d.Ack(false)
		return
	}

	retries := retryCount(headers)
	if retries >= int32(q.maxRetries) {
		q.logger.Error("job permanently failed", "campaign_id", job.CampaignID, "retries", retries, "error", err)
		d.Reject(false)
		return
	}
	q.logger.Warn("job failed, requeueing", "campaign_id", job.CampaignID, "retries", retries, "error", err)
	if pubErr := q.requeue(q.ctx, topic, body, retries+1); pubErr != nil {
		q.logger.Error("requeue failed", "campaign_id", job.CampaignID, "error", pubErr)
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

func retryCount(h amqp.Table) int32 {
	switch v := h[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	}
	return 0
}

// Close stops the consumers and closes the connection.
func (q *AMQPQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	q.pubMu.Lock()
	q.pub.Close()
	q.pubMu.Unlock()
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
var _ Queue = (*InMemoryQueue)(nil)
