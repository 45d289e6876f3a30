package kafka

import (
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	// Создаем тестовое событие
	event := NewChangeEvent(
		EventTypePurchaseCreated,
		"purchases",
		"purchase-123",
		map[string]interface{}{
			"event_id": "evt-1",
		},
	)

	// Публикуем событие
	err := producer.PublishEvent(TopicPurchasesChanged, "purchase-123", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewChangeEvent(
		EventTypePurchaseCreated,
		"purchases",
		"purchase-123",
		nil,
	)

	// Публикуем событие
	err := producer.PublishEvent(TopicPurchasesChanged, "purchase-123", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewChangeEvent(t *testing.T) {
	docID := "purchase-123"
	metadata := map[string]interface{}{
		"serving_point_id": "sp-1",
		"total_price":      1000,
	}

	event := NewChangeEvent(EventTypePurchaseCreated, "purchases", docID, metadata)

	if event.EventType != EventTypePurchaseCreated {
		t.Errorf("expected event type %s, got %s", EventTypePurchaseCreated, event.EventType)
	}

	if event.DocID != docID {
		t.Errorf("expected doc id %s, got %s", docID, event.DocID)
	}

	if event.CollectionPath != "purchases" {
		t.Errorf("expected collection path purchases, got %s", event.CollectionPath)
	}

	if event.Metadata["serving_point_id"] != "sp-1" {
		t.Error("metadata not set correctly")
	}

	// Проверяем, что timestamp установлен
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}

	// Проверяем, что timestamp близок к текущему времени
	if time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}

func TestNewChangeEventDistributedOrder(t *testing.T) {
	docID := "order-123"
	status := "open"
	metadata := map[string]interface{}{
		"status": status,
	}

	event := NewChangeEvent(EventTypeDistributedOrderCreated, "distributed_orders", docID, metadata)

	if event.EventType != EventTypeDistributedOrderCreated {
		t.Errorf("expected event type %s, got %s", EventTypeDistributedOrderCreated, event.EventType)
	}

	if event.DocID != docID {
		t.Errorf("expected doc id %s, got %s", docID, event.DocID)
	}

	if event.Metadata["status"] != status {
		t.Errorf("expected status %s, got %v", status, event.Metadata["status"])
	}

	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}
