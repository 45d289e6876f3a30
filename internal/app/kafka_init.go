package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
	"github.com/pos-distribution/engine/internal/messaging/kafka"
)

const (
	groupPurchaseOrchestrator = "distribution-purchase-orchestrator"
	groupAvailabilityRecon    = "distribution-availability-reconciler"
	groupRefundPropagator     = "distribution-refund-propagator"
	groupCashPaymentNotifier  = "distribution-cash-payment-notifier"
)

// kafkaRuntime bundles every Kafka-backed component the app starts and
// stops as one unit: the producer, the outbox publisher built on top of it,
// and the four trigger consumer groups of §6.3.
type kafkaRuntime struct {
	producer  *kafka.Producer
	publisher domain.OutboxPublisher
	consumers []*kafka.Consumer
}

// initKafka wires the producer and the four trigger consumer groups when
// brokers is non-empty; it returns nil, nil otherwise so the caller falls
// back to a Kafka-less run (outbox rows accumulate but are never drained).
func initKafka(brokers string, deps *Dependencies, logger *log.Entry) (*kafkaRuntime, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokerList).Info("kafka producer initialized")

	publisher := kafka.NewOutboxPublisher(producer)

	rt := &kafkaRuntime{producer: producer, publisher: publisher}

	consumerSpecs := []struct {
		group   string
		topic   string
		handler kafka.MessageHandler
	}{
		{groupPurchaseOrchestrator, kafka.TopicPurchasesChanged, purchaseHandler(deps, logger)},
		{groupAvailabilityRecon, kafka.TopicPOSItemsChanged, posItemHandler(deps, logger)},
		{groupRefundPropagator, kafka.TopicNotificationsChanged, notificationHandler(deps, logger)},
		{groupCashPaymentNotifier, kafka.TopicOrdersCreated, orderCreatedHandler(deps, logger)},
	}

	for _, spec := range consumerSpecs {
		consumer, err := kafka.NewConsumerWithDLQ(brokerList, spec.group, []string{spec.topic}, spec.handler, producer, 3)
		if err != nil {
			closeConsumers(rt.consumers, logger)
			_ = producer.Close()
			return nil, err
		}
		rt.consumers = append(rt.consumers, consumer)
	}

	return rt, nil
}

func (rt *kafkaRuntime) start(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	for _, consumer := range rt.consumers {
		if err := consumer.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (rt *kafkaRuntime) close(logger *log.Entry) {
	if rt == nil {
		return
	}
	closeConsumers(rt.consumers, logger)
	if rt.producer != nil {
		if err := rt.producer.Close(); err != nil {
			logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			logger.Info("kafka producer closed")
		}
	}
}

func closeConsumers(consumers []*kafka.Consumer, logger *log.Entry) {
	for _, consumer := range consumers {
		if err := consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop kafka consumer")
		}
	}
}

func purchaseHandler(deps *Dependencies, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEnvelope(message)
		if err != nil {
			return err
		}
		var evt domain.PurchaseChangeEvent
		if err := json.Unmarshal(envelope.Payload, &evt); err != nil {
			return err
		}
		if err := deps.Orchestrator.HandlePurchaseWrite(evt); err != nil {
			logger.WithError(err).WithField("purchase_id", envelope.DocID).Warn("purchase orchestrator failed")
			return err
		}
		return nil
	}
}

func posItemHandler(deps *Dependencies, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEnvelope(message)
		if err != nil {
			return err
		}
		var evt domain.POSItemChangeEvent
		if err := json.Unmarshal(envelope.Payload, &evt); err != nil {
			return err
		}
		if err := deps.Reconciler.HandlePOSItemUpdate(evt); err != nil {
			logger.WithError(err).WithField("doc_id", envelope.DocID).Warn("availability reconciler failed")
			return err
		}
		return nil
	}
}

func notificationHandler(deps *Dependencies, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEnvelope(message)
		if err != nil {
			return err
		}
		var evt domain.NotificationChangeEvent
		if err := json.Unmarshal(envelope.Payload, &evt); err != nil {
			return err
		}
		if err := deps.Propagator.HandleNotificationUpdate(evt); err != nil {
			logger.WithError(err).WithField("doc_id", envelope.DocID).Warn("refund propagator failed")
			return err
		}
		return nil
	}
}

func orderCreatedHandler(deps *Dependencies, logger *log.Entry) kafka.MessageHandler {
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		envelope, err := kafka.ParseEnvelope(message)
		if err != nil {
			return err
		}
		var evt domain.OrderCreatedEvent
		if err := json.Unmarshal(envelope.Payload, &evt); err != nil {
			return err
		}
		if err := deps.CashNotifier.HandleOrderCreate(evt); err != nil {
			logger.WithError(err).WithField("doc_id", envelope.DocID).Warn("cash payment notifier failed")
			return err
		}
		return nil
	}
}
