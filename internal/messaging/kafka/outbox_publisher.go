package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pos-distribution/engine/internal/domain"
)

// collectionTopics maps each watched collection path (§6.3) to its Kafka
// topic; an outbox message for a path outside this table has no destination
// and is rejected rather than silently misrouted.
var collectionTopics = map[domain.CollectionPath]string{
	domain.PathPurchases:     TopicPurchasesChanged,
	domain.PathPOSItems:      TopicPOSItemsChanged,
	domain.PathNotifications: TopicNotificationsChanged,
	domain.PathOrdersCreated: TopicOrdersCreated,
}

// Envelope is the wire shape of one published change event: the outbox
// record plus the time it left the publisher. Consumers unmarshal this
// first, then unmarshal Payload into the domain change-event type matching
// the topic they subscribed to.
type Envelope struct {
	ID             string          `json:"id"`
	CollectionPath string          `json:"collection_path"`
	EventID        string          `json:"event_id"`
	DocID          string          `json:"doc_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishedAt    time.Time       `json:"published_at"`
}

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, выбирая topic по
// CollectionPath сообщения (§6.3: один topic на каждую отслеживаемую
// коллекцию).
type OutboxTopicPublisher struct {
	producer *Producer
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer) domain.OutboxPublisher {
	return &OutboxTopicPublisher{producer: producer}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	topic, ok := collectionTopics[event.CollectionPath]
	if !ok {
		return fmt.Errorf("no kafka topic registered for collection path %q", event.CollectionPath)
	}

	key := event.DocID
	if key == "" {
		key = event.ID
	}

	envelope := Envelope{
		ID:             event.ID,
		CollectionPath: string(event.CollectionPath),
		EventID:        event.EventID,
		DocID:          event.DocID,
		EventType:      event.EventType,
		Payload:        json.RawMessage(event.Payload),
		PublishedAt:    time.Now().UTC(),
	}

	return p.producer.PublishEvent(topic, key, envelope)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
