package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"image-annotator/internal/model"
)

var errMalformedEvent = errors.New("malformed upload event")

type UploadEventWriter interface {
	Create(ctx context.Context, event *model.UploadEvent) error
}

// UploadEventWorker drains the upload event queue into the event log.
type UploadEventWorker struct {
	conn      *amqp.Connection
	repo      UploadEventWriter
	queueName string
	log       *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUploadEventWorker(conn *amqp.Connection, repo UploadEventWriter, queueName string, log *zap.Logger) *UploadEventWorker {
	return &UploadEventWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		log:       log.Named("upload_event_worker"),
	}
}

func (w *UploadEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}
				w.ack(d, w.handle(workerCtx, d.Body))
			}
		}
	}()

	w.log.Info("worker started", zap.String("queue", w.queueName))
	return nil
}

// handle decodes and stores one message body.
func (w *UploadEventWorker) handle(ctx context.Context, body []byte) error {
	var event model.UploadEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if event.EventID == "" {
		return fmt.Errorf("%w: missing event_id", errMalformedEvent)
	}
	event.ID = 0
	if err := w.repo.Create(ctx, &event); err != nil {
		return err
	}
	return nil
}

// ack settles a delivery. Store failures are requeued once; malformed
// messages and repeated failures are dropped.
func (w *UploadEventWorker) ack(d amqp.Delivery, err error) {
	if err == nil {
		_ = d.Ack(false)
		return
	}
	requeue := !errors.Is(err, errMalformedEvent) && !d.Redelivered
	w.log.Error("persist upload event failed",
		zap.String("message_id", d.MessageId),
		zap.Bool("requeue", requeue),
		zap.Error(err))
	_ = d.Nack(false, requeue)
}

func (w *UploadEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
