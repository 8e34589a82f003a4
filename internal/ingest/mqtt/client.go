// Package mqtt connects the engine to the sensor MQTT topic. It decodes frame
// payloads for ingestion and publishes synthetic frames for the simulator.
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/softbio/fallcapture/internal/log"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"go.uber.org/zap"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250 // milliseconds
)

// FrameSink accepts decoded frames
type FrameSink interface {
	OnFrame(f types.Frame) error
}

func newClient(cfg *config.MQTTData, clientID string, onConnect paho.OnConnectHandler, logger *zap.SugaredLogger) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(true)
	opts.OnConnect = onConnect
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warnw("mqtt connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}
	return paho.NewClient(opts)
}

func connect(ctx context.Context, client paho.Client, broker string) error {
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		client.Disconnect(0)
		return fmt.Errorf("mqtt connection to %s timed out", broker)
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}
	return nil
}

// Consumer subscribes to the frame topic and feeds a FrameSink. Messages are
// delivered in arrival order.
type Consumer struct {
	cfg    *config.MQTTData
	sink   FrameSink
	logger *zap.SugaredLogger

	accepted atomic.Uint64
	rejected atomic.Uint64
}

// NewConsumer creates an unconnected consumer
func NewConsumer(cfg *config.MQTTData, sink FrameSink, logger *zap.SugaredLogger) *Consumer {
	return &Consumer{cfg: cfg, sink: sink, logger: log.OrNop(logger)}
}

// Start connects, subscribes and disconnects again when ctx ends
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) error {
	onConnect := func(client paho.Client) {
		// Clean sessions lose subscriptions on reconnect
		token := client.Subscribe(c.cfg.Topic, c.cfg.QoS, func(_ paho.Client, msg paho.Message) {
			c.HandleMessage(msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			c.logger.Errorf("failed to subscribe to topic %s: %v", c.cfg.Topic, token.Error())
			return
		}
		c.logger.Infof("subscribed to %s on %s", c.cfg.Topic, c.cfg.Broker)
	}

	client := newClient(c.cfg, c.cfg.ClientID, onConnect, c.logger)
	if err := connect(ctx, client, c.cfg.Broker); err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		c.logger.Info("cancellation request received, disconnecting from MQTT broker")
		client.Disconnect(disconnectQuiesce)
	}()
	return nil
}

// HandleMessage decodes one payload and hands it to the sink. Bad payloads
// and rejected frames are logged and dropped.
func (c *Consumer) HandleMessage(payload []byte) {
	f, err := DecodeFrame(payload)
	if err == nil {
		err = c.sink.OnFrame(f)
	}
	if err != nil {
		c.rejected.Add(1)
		c.logger.Debugf("dropping frame: %v", err)
		return
	}
	c.accepted.Add(1)
}

// Stats returns the message counters
func (c *Consumer) Stats() types.IngestStats {
	return types.IngestStats{Accepted: c.accepted.Load(), Rejected: c.rejected.Load()}
}

// Publisher sends frames to the frame topic
type Publisher struct {
	cfg    *config.MQTTData
	client paho.Client
}

// NewPublisher connects a publishing client
func NewPublisher(ctx context.Context, cfg *config.MQTTData, logger *zap.SugaredLogger) (*Publisher, error) {
	logger = log.OrNop(logger)
	client := newClient(cfg, cfg.ClientID+"-publisher", func(paho.Client) {
		logger.Infof("connected to %s", cfg.Broker)
	}, logger)
	if err := connect(ctx, client, cfg.Broker); err != nil {
		return nil, err
	}
	return &Publisher{cfg: cfg, client: client}, nil
}

// Publish encodes and sends one frame
func (p *Publisher) Publish(f types.Frame) error {
	payload, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", p.cfg.Topic, token.Error())
	}
	return nil
}

// Close disconnects the publisher
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}
