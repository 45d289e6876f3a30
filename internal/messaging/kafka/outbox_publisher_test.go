package kafka

import (
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"

	"github.com/pos-distribution/engine/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer)

	err := publisher.Publish(domain.OutboxMessage{
		ID:             "outbox-1",
		CollectionPath: domain.PathPurchases,
		EventID:        "evt-1",
		DocID:          "purchase-123",
		EventType:      "PurchaseDistributed",
		Payload:        []byte(`{"status":"confirmed"}`),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishProducerError(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer)

	err := publisher.Publish(domain.OutboxMessage{
		ID:             "outbox-2",
		CollectionPath: domain.PathPurchases,
		EventID:        "evt-2",
		DocID:          "purchase-234",
		EventType:      "PurchaseDistributed",
		Payload:        []byte(`{"status":"failed"}`),
	})
	if err == nil {
		t.Fatal("expected publish error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOutboxPublisher_PublishNilProducer(t *testing.T) {
	t.Parallel()

	publisher := NewOutboxPublisher(nil)
	if err := publisher.Publish(domain.OutboxMessage{ID: "outbox-3"}); err == nil {
		t.Fatal("expected error for nil producer")
	}
}

func TestOutboxPublisher_RoutesByCollectionPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path          domain.CollectionPath
		expectedTopic string
	}{
		{domain.PathPurchases, TopicPurchasesChanged},
		{domain.PathPOSItems, TopicPOSItemsChanged},
		{domain.PathNotifications, TopicNotificationsChanged},
		{domain.PathOrdersCreated, TopicOrdersCreated},
	}

	for _, tc := range cases {
		mockProducer := mocks.NewSyncProducer(t, nil)
		expectedTopic := tc.expectedTopic
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			if msg.Topic != expectedTopic {
				return fmt.Errorf("expected topic %s, got %s", expectedTopic, msg.Topic)
			}
			return nil
		})

		producer := &Producer{
			producer: mockProducer,
			logger:   log.WithField("component", "kafka-outbox-publisher-test"),
		}
		publisher := NewOutboxPublisher(producer)

		err := publisher.Publish(domain.OutboxMessage{
			ID:             "outbox-route",
			CollectionPath: tc.path,
			EventID:        "evt-1",
			DocID:          "doc-1",
			EventType:      "Changed",
			Payload:        []byte(`{}`),
		})
		if err != nil {
			t.Fatalf("publish failed for path %s: %v", tc.path, err)
		}
		if err := mockProducer.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestOutboxPublisher_UnknownCollectionPathIsRejected(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-outbox-publisher-test"),
	}
	publisher := NewOutboxPublisher(producer)

	err := publisher.Publish(domain.OutboxMessage{ID: "outbox-4", CollectionPath: "unknown"})
	if err == nil {
		t.Fatal("expected error for unknown collection path")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
