package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"ideaflow/internal/config"
	"ideaflow/internal/events"
)

// KafkaNotifier forwards pipeline events to a Kafka topic so external
// consumers (dashboards, alerting) can follow transitions without polling.
type KafkaNotifier struct {
	Producer sarama.SyncProducer
	Topic    string
	Logger   *zap.Logger
}

func NewKafkaNotifier(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka enabled but no brokers configured")
	}
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 3
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &KafkaNotifier{Producer: producer, Topic: cfg.Topic, Logger: logger}, nil
}

// Run consumes the hub subscription until the context ends. Publish failures
// are logged and dropped; the pipeline never blocks on Kafka.
func (n *KafkaNotifier) Run(ctx context.Context, hub *events.Hub) {
	ch := hub.Subscribe(64)
	defer hub.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			n.send(ev)
		}
	}
}

func (n *KafkaNotifier) send(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: n.Topic,
		Key:   sarama.StringEncoder(ev.Type),
		Value: sarama.ByteEncoder(payload),
	}
	if _, _, err := n.Producer.SendMessage(msg); err != nil && n.Logger != nil {
		n.Logger.Warn("kafka publish failed",
			zap.String("topic", n.Topic),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
	}
}

func (n *KafkaNotifier) Close() error {
	if n == nil || n.Producer == nil {
		return nil
	}
	return n.Producer.Close()
}
