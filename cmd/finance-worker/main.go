// finance-worker consumes shipment and payment events from Pub/Sub and
// applies them through the workflow dispatcher.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/shipment_finance/bootstrap"
	"github.com/mmdatafocus/shipment_finance/config"
	"github.com/mmdatafocus/shipment_finance/utils"
	"github.com/mmdatafocus/shipment_finance/workflow"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := bootstrap.New(ctx, bootstrap.Options{
		PolicyFile: os.Getenv("FINANCE_POLICY_FILE"),
		Migrate:    os.Getenv("AUTO_MIGRATE") == "true",
	})
	if err != nil {
		log.Fatalf("finance-worker: %v", err)
	}
	bootstrap.ServeMetrics(ctx, os.Getenv("METRICS_ADDR"), svc.Logger)

	if os.Getenv("RATE_FEED_URL") != "" {
		if r, err := svc.Refresher(); err == nil {
			go r.Run(ctx)
		} else {
			config.LogError(svc.Logger, "main.go", "main", "Refresher", nil, err)
		}
	}

	if err := runEventWorkflow(ctx, svc.Dispatcher, svc.Logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("finance-worker: %v", err)
	}
}

func runEventWorkflow(ctx context.Context, d *workflow.Dispatcher, logger *logrus.Logger) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, config.FinanceEventsTopic())
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, config.FinanceEventsSubscription(), topic)
	if err != nil {
		return err
	}
	// Specify the number of concurrent processes
	sub.ReceiveSettings.MaxOutstandingMessages = 10

	callback := func(ctx context.Context, msg *pubsub.Message) {
		ev, err := workflow.ParseEvent(msg.Data)
		if err != nil {
			// a malformed event never gets better on redelivery
			config.LogError(logger, "main.go", "runEventWorkflow", "Unmarshaling pubsub message", string(msg.Data), err)
			msg.Ack()
			return
		}

		ctx = utils.SetCorrelationIdInContext(ctx, msg.ID)
		ctx = utils.SetActorIdInContext(ctx, utils.SystemActor)
		if err := d.Process(ctx, ev); err != nil {
			fields := logrus.Fields{
				"field":      "FinanceWorkflow",
				"event_id":   ev.ID,
				"event_type": ev.Type,
				"message_id": msg.ID,
			}
			if workflow.Permanent(err) {
				logger.WithFields(fields).Warn("dropping event: " + err.Error())
				msg.Ack()
				return
			}
			logger.WithFields(fields).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	logger.WithFields(logrus.Fields{"field": "FinanceWorkflow", "subscription": sub.ID()}).Info("receiving finance events")
	return sub.Receive(ctx, callback)
}
