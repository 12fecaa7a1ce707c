// Package worker serves digit predictions over RabbitMQ as an RPC worker.
//
// Requests are JSON deliveries on the configured routing key. Each reply is
// published to the delivery's ReplyTo key with the same CorrelationId.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
	"github.com/streadway/amqp"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/config"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// Request is the body of an incoming delivery.
type Request struct {
	Image     string `json:"image"`
	RequestID string `json:"request_id,omitempty"`
}

// Reply is the body published back to the requester. Either the prediction
// fields or Error are set.
type Reply struct {
	RequestID string `json:"request_id,omitempty"`

	*classify.Prediction

	Found    bool   `json:"found"`
	Repaired bool   `json:"repaired"`
	Error    string `json:"error,omitempty"`
}

// Worker consumes prediction requests from one queue.
type Worker struct {
	cfg        config.AMQPConfig
	normalizer *pipeline.Normalizer
	classifier classify.Classifier
	timeout    time.Duration

	conn    *amqp.Connection
	channel *amqp.Channel
	tag     string

	// Done receives an error when the delivery loop stops, either because
	// the connection dropped or because Shutdown was called.
	Done chan error
}

// New creates a Worker. clf may be nil, in which case every request is
// answered with a "Model not loaded" error. timeout bounds each classifier
// call.
func New(cfg config.AMQPConfig, norm *pipeline.Normalizer, clf classify.Classifier, timeout time.Duration) *Worker {
	if norm == nil {
		norm = pipeline.New()
	}
	return &Worker{
		cfg:        cfg,
		normalizer: norm,
		classifier: clf,
		timeout:    timeout,
		tag:        ksuid.New().String(),
		Done:       make(chan error, 1),
	}
}

// Tag returns the consumer tag.
func (w *Worker) Tag() string {
	return w.tag
}

// Run connects, declares the exchange and queue, and starts consuming in a
// goroutine. It returns once consumption has started.
func (w *Worker) Run() error {
	logger := log.With().Str("component", "DIGIT_WORKER").Str("tag", w.tag).Logger()

	logger.Info().Str("host", w.cfg.URI).Msg("dialing rabbitMq")
	conn, err := amqp.Dial(w.cfg.URI)
	if err != nil {
		return fmt.Errorf("dial rabbitMq: %w", err)
	}
	w.conn = conn

	go func() {
		if cerr := <-conn.NotifyClose(make(chan *amqp.Error, 1)); cerr != nil {
			logger.Warn().Str("reason", cerr.Reason).Int("code", cerr.Code).Msg("connection closed")
		}
	}()

	w.channel, err = conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := w.channel.Qos(w.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	if err := w.channel.ExchangeDeclare(
		w.cfg.Exchange,     // name
		w.cfg.ExchangeType, // type
		true,               // durable
		false,              // delete when complete
		false,              // internal
		false,              // noWait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// The routing key doubles as the queue name
	queue, err := w.channel.QueueDeclare(
		w.cfg.RoutingKey, // name
		true,             // durable
		false,            // delete when unused
		false,            // exclusive
		false,            // noWait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := w.channel.QueueBind(queue.Name, w.cfg.RoutingKey, w.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := w.channel.Consume(
		queue.Name, // name
		w.tag,      // consumerTag
		false,      // noAck
		false,      // exclusive
		false,      // noLocal
		false,      // noWait
		nil,        // arguments
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	logger.Info().Str("queue", queue.Name).Str("exchange", w.cfg.Exchange).Msg("consuming")
	go w.consume(deliveries)

	return nil
}

// Shutdown cancels the consumer, closes the connection and waits for the
// delivery loop to exit.
func (w *Worker) Shutdown() error {
	if w.channel == nil || w.conn == nil {
		return errors.New("worker is not running")
	}
	if err := w.channel.Cancel(w.tag, true); err != nil {
		return fmt.Errorf("cancel consumer %s: %w", w.tag, err)
	}
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("close connection: %w", err)
	}

	err := <-w.Done
	log.Info().Str("component", "DIGIT_WORKER").Str("tag", w.tag).Msg("shutdown complete")
	return err
}

func (w *Worker) consume(deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		log.Debug().Str("component", "DIGIT_WORKER").
			Str("tag", w.tag).
			Int("msg_size", len(d.Body)).
			Str("CorrelationId", d.CorrelationId).
			Str("ReplyTo", d.ReplyTo).
			Msg("got delivery")

		reply := w.Handle(context.Background(), d.Body)

		if d.ReplyTo != "" {
			if err := w.publish(reply, d.ReplyTo, d.CorrelationId); err != nil {
				log.Error().Err(err).Str("component", "DIGIT_WORKER").
					Str("tag", w.tag).
					Str("CorrelationId", d.CorrelationId).
					Msg("failed to send reply")
				// Requeue for another worker and stop; the connection is
				// most likely gone
				_ = d.Nack(false, true)
				w.Done <- err
				return
			}
		}

		if err := d.Ack(false); err != nil {
			log.Warn().Err(err).Str("component", "DIGIT_WORKER").Str("tag", w.tag).Msg("ack failed")
		}
	}

	log.Info().Str("component", "DIGIT_WORKER").Str("tag", w.tag).Msg("deliveries channel closed")
	w.Done <- errors.New("deliveries channel closed")
}

func (w *Worker) publish(reply Reply, replyTo, correlationID string) error {
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}

	return w.channel.Publish(
		w.cfg.Exchange, // exchange
		replyTo,        // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Transient,
			CorrelationId: correlationID,
		},
	)
}

// Handle turns one request body into a reply. It never fails; problems are
// reported in Reply.Error.
func (w *Worker) Handle(ctx context.Context, body []byte) Reply {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Reply{Error: fmt.Sprintf("invalid request: %v", err)}
	}

	reply := Reply{RequestID: req.RequestID}

	if w.classifier == nil {
		reply.Error = "Model not loaded"
		return reply
	}
	if req.Image == "" {
		reply.Error = "No image data provided"
		return reply
	}

	res, err := w.normalizer.Normalize(req.Image)
	if err != nil {
		log.Info().Err(err).Str("component", "DIGIT_WORKER").Str("request_id", req.RequestID).
			Msg("rejected undecodable image")
		reply.Error = "Failed to process image"
		return reply
	}
	if !res.DarkOnLight {
		log.Warn().Str("component", "DIGIT_WORKER").Str("request_id", req.RequestID).
			Float64("border_lightness", res.BorderLightness).
			Msg("capture looks light-on-dark; inversion will produce a dark digit")
	}
	reply.Found = res.Found
	reply.Repaired = res.Repaired

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	pred, err := w.classifier.Classify(ctx, res.Tensor)
	if err != nil {
		log.Error().Err(err).Str("component", "DIGIT_WORKER").Str("request_id", req.RequestID).
			Msg("classification failed")
		reply.Error = fmt.Sprintf("classification failed: %v", err)
		return reply
	}
	reply.Prediction = pred
	return reply
}

