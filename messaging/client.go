// Package messaging connects the device to the fleet bus: it announces the
// device, publishes its sync state, and turns server notices into refresh
// requests.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"sitemanager/config"
	"sitemanager/protocol"
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("messaging not connected")

// Client is the unified messaging client (MQTT or Kafka).
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	clientID string
	backend  string
	log      *zap.Logger

	mqttConn mqtt.Client
	kafkaW   *kafkago.Writer
	readers  []*kafkago.Reader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a messaging client based on config. clientID names the
// MQTT session and the Kafka consumer group.
func NewClient(cfg *config.MessagingConfig, clientID string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:      cfg,
		clientID: clientID,
		backend:  cfg.Backend,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Connect establishes the messaging connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		return c.connectMQTT()
	case "kafka":
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	c.log.Info("mqtt connected", zap.String("broker", broker))
	return nil
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	c.log.Info("kafka writer ready", zap.Strings("brokers", c.cfg.Kafka.Brokers))
	return nil
}

// Publish sends a message to topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return ErrNotConnected
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return ErrNotConnected
		}
		return c.kafkaW.WriteMessages(c.ctx, kafkago.Message{Topic: topic, Value: payload})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// PublishEnvelope encodes and publishes a protocol envelope to the given topic.
func (c *Client) PublishEnvelope(topic string, env *protocol.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe registers a handler for messages on topic.
func (c *Client) Subscribe(topic string, handler func(payload []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil {
			return ErrNotConnected
		}
		token := c.mqttConn.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			handler(msg.Payload())
		})
		token.Wait()
		return token.Error()
	case "kafka":
		groupID := c.cfg.Kafka.GroupID
		if groupID == "" {
			groupID = c.clientID
		}
		r := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: groupID,
		})
		c.readers = append(c.readers, r)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				msg, err := r.ReadMessage(c.ctx)
				if err != nil {
					if c.ctx.Err() == nil {
						c.log.Warn("kafka read", zap.String("topic", topic), zap.Error(err))
					}
					return
				}
				handler(msg.Value)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// IsConnected returns whether the messaging client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the messaging connection and waits for readers to exit.
func (c *Client) Close() {
	c.cancel()
	c.mu.Lock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	for _, r := range c.readers {
		r.Close()
	}
	c.readers = nil
	c.mu.Unlock()
	c.wg.Wait()
}
