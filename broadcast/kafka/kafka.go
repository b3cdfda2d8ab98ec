// Package kafka broadcasts transforms to a kafka topic through a synchronous sarama producer.
//
// Each message is a JSON TFMessage keyed by the child frame, so a log compacted topic keeps the
// latest transform of every frame for late consumers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"go.viam.com/pubtf/broadcast"
	"go.viam.com/pubtf/config"
	"go.viam.com/pubtf/logging"
	"go.viam.com/pubtf/referenceframe"
	"go.viam.com/pubtf/ros"
)

// Name is the registered name of this broadcaster.
const Name = "kafka"

// ParentFrameHeader carries the parent frame name on every message.
const ParentFrameHeader = "frame_id"

func init() {
	broadcast.Register(Name, func(ctx context.Context, cfg config.Config, logger logging.Logger) (broadcast.Broadcaster, error) {
		if logger.GetLevel() == logging.DEBUG {
			sarama.Logger = saramaLogger{logger}
		}
		return NewBroadcaster(cfg.Kafka, logger)
	})
}

// NewSaramaConfig maps the kafka settings onto a producer config.
func NewSaramaConfig(cfg config.KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
		sc.Net.DialTimeout = cfg.Timeout
	}
	if err := sc.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid kafka config")
	}
	return sc, nil
}

// Broadcaster publishes records with a sarama.SyncProducer.
type Broadcaster struct {
	producer sarama.SyncProducer
	topic    string
	logger   logging.Logger
}

// NewBroadcaster dials the configured brokers.
func NewBroadcaster(cfg config.KafkaConfig, logger logging.Logger) (*Broadcaster, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka broadcaster needs at least one broker")
	}
	sc, err := NewSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to kafka brokers %v", cfg.Brokers)
	}
	logger.Infow("connected to kafka", "brokers", cfg.Brokers, "required_acks", cfg.RequiredAcks)
	return NewBroadcasterFromProducer(producer, cfg.Topic, logger), nil
}

// NewBroadcasterFromProducer wraps an existing producer. An empty topic selects the topic from
// the kind of each record.
func NewBroadcasterFromProducer(producer sarama.SyncProducer, topic string, logger logging.Logger) *Broadcaster {
	return &Broadcaster{producer: producer, topic: topic, logger: logger}
}

// Topic returns the topic tr is sent to: the configured one, or tf_static / tf.
func (b *Broadcaster) Topic(tr referenceframe.TransformRecord) string {
	if b.topic != "" {
		return b.topic
	}
	// Kafka topic names cannot contain '/'.
	return strings.TrimPrefix(ros.TopicFor(tr), "/")
}

// Broadcast sends tr and waits for the broker acknowledgement required by the config.
func (b *Broadcaster) Broadcast(ctx context.Context, tr referenceframe.TransformRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(ros.TFMessage{Transforms: []ros.TransformStamped{ros.TransformStampedFromRecord(tr)}})
	if err != nil {
		return errors.Wrap(err, "cannot encode transform")
	}
	msg := &sarama.ProducerMessage{
		Topic: b.Topic(tr),
		Key:   sarama.StringEncoder(tr.Child()),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(ParentFrameHeader), Value: []byte(tr.Parent())},
		},
	}
	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrapf(err, "cannot send transform to topic %q", msg.Topic)
	}
	b.logger.Debugw("broadcast transform", "topic", msg.Topic, "partition", partition, "offset", offset)
	return nil
}

// Close flushes and closes the producer.
func (b *Broadcaster) Close(ctx context.Context) error {
	return errors.Wrap(b.producer.Close(), "cannot close kafka producer")
}

// saramaLogger routes sarama's internal logging to a debug logger.
type saramaLogger struct {
	logger logging.Logger
}

func (l saramaLogger) Print(v ...interface{}) {
	l.logger.Debug(fmt.Sprint(v...))
}

func (l saramaLogger) Printf(format string, v ...interface{}) {
	l.logger.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l saramaLogger) Println(v ...interface{}) {
	l.logger.Debug(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}
