package mutlog

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

// KafkaMaxMessageSize is the maximum size of a published merge message.
const KafkaMaxMessageSize = 1 << 20

// KafkaConfig describes where persisted merges are published.
type KafkaConfig struct {
	Servers []string
	Topic   string
}

// KafkaLog publishes each persisted merge as a JSON message.  Queued and
// undone decisions are never published since the store never saw them.
type KafkaLog struct {
	producer sarama.AsyncProducer
	topic    string
	uuid     string
	done     chan struct{}
}

// NewKafkaLog returns a publisher for merges to the repo version uuid, or
// nil if no servers are configured.
func NewKafkaLog(kc KafkaConfig, uuid string) (*KafkaLog, error) {
	if len(kc.Servers) == 0 {
		return nil, nil
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	topic := kc.Topic
	if topic == "" {
		topic = "dvidviewer-" + uuid
	}
	dvid.Infof("Kafka topic for merges: %s\n", topic)
	return NewKafkaLogWithProducer(producer, topic, uuid), nil
}

// NewKafkaLogWithProducer wraps an already constructed producer.
func NewKafkaLogWithProducer(producer sarama.AsyncProducer, topic, uuid string) *KafkaLog {
	kl := &KafkaLog{
		producer: producer,
		topic:    topic,
		uuid:     uuid,
		done:     make(chan struct{}),
	}
	go func() {
		for err := range producer.Errors() {
			dvid.Errorf("error on kafka send: %v\n", err)
		}
		close(kl.done)
	}()
	return kl
}

type mergeMsg struct {
	Action    string
	Target    uint64
	Labels    []uint64
	Location  string
	Session   string
	UUID      string
	Timestamp string
}

func (kl *KafkaLog) Record(e Entry) error {
	if e.Type != FlushEntry {
		return nil
	}
	msg := mergeMsg{
		Action:    "merge",
		Target:    e.Master,
		Labels:    labels.NewSet(e.Slave).Sorted(),
		Location:  e.Location.String(),
		Session:   e.Session,
		UUID:      kl.uuid,
		Timestamp: time.Unix(0, e.Time).String(),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	timeKey := sarama.StringEncoder(strconv.FormatInt(e.Time, 10))
	kl.producer.Input() <- &sarama.ProducerMessage{Topic: kl.topic, Value: sarama.ByteEncoder(value), Key: timeKey}
	return nil
}

// Close flushes queued messages before shutting down the producer.
func (kl *KafkaLog) Close() error {
	err := kl.producer.Close()
	<-kl.done
	if err != nil {
		dvid.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	dvid.Infof("Kafka producer shut down.\n")
	return nil
}
