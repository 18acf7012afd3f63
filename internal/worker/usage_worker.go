package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"streamchat/internal/model"
)

// UsageSink persists decoded usage records.
type UsageSink interface {
	InsertUsage(ctx context.Context, usage *model.TurnUsage) error
}

// UsageWorker drains the turn-usage queue into the store so that
// accounting writes never sit on the request path.
type UsageWorker struct {
	conn      *amqp.Connection
	sink      UsageSink
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUsageWorker(conn *amqp.Connection, sink UsageSink, queueName string) *UsageWorker {
	return &UsageWorker{
		conn:      conn,
		sink:      sink,
		queueName: queueName,
	}
}

func (w *UsageWorker) Start(ctx context.Context) error {
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

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
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
					return
				}

				var usage model.TurnUsage
				if err := json.Unmarshal(d.Body, &usage); err != nil {
					log.Printf("worker decode usage failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.sink.InsertUsage(workerCtx, &usage); err != nil {
					log.Printf("worker persist usage failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *UsageWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
