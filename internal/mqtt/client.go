package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/flybeeper/taskengine/internal/config"
	"github.com/flybeeper/taskengine/internal/metrics"
	"github.com/flybeeper/taskengine/pkg/utils"
)

const (
	fixQoS         = 1
	connectTimeout = 10 * time.Second
	quiesceMillis  = 1000
)

// FixHandler функция обработки распарсенного отсчета
type FixHandler func(fix *Fix) error

// ClientStats счетчики входящего потока отсчетов
type ClientStats struct {
	Connected     bool   `json:"connected"`
	Broker        string `json:"broker"`
	Topic         string `json:"topic"`
	Received      uint64 `json:"received"`
	Rejected      uint64 `json:"rejected"`
	HandlerErrors uint64 `json:"handler_errors"`
	Delivered     uint64 `json:"delivered"`
}

// Client подписчик на отсчеты вычислителя полета
type Client struct {
	client  mqtt.Client
	config  *config.MQTTConfig
	logger  *utils.Logger
	parser  *Parser
	handler FixHandler

	ctx    context.Context
	cancel context.CancelFunc
	inbox  sync.WaitGroup

	connected     atomic.Bool
	ready         chan struct{}
	readyOnce     sync.Once
	received      atomic.Uint64
	rejected      atomic.Uint64
	handlerErrors atomic.Uint64
	delivered     atomic.Uint64
}

// NewClient создает MQTT клиент. Соединение открывает Connect.
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger, handler FixHandler) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FixTopic == "" {
		return nil, fmt.Errorf("fix topic is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config:  cfg,
		logger:  logger.WithField("component", "mqtt"),
		parser:  NewParser(cfg.FixTopic, logger),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		ready:   make(chan struct{}),
	}
	c.client = mqtt.NewClient(c.options())
	return c, nil
}

func (c *Client) options() *mqtt.ClientOptions {
	cfg := c.config
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetCleanSession(cfg.CleanSession).
		SetOrderMatters(cfg.OrderMatters).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	return opts
}

// onConnect повторяет подписку после каждого переподключения
func (c *Client) onConnect(client mqtt.Client) {
	c.setConnected(true)
	c.readyOnce.Do(func() { close(c.ready) })

	token := client.Subscribe(c.config.FixTopic, fixQoS, func(_ mqtt.Client, msg mqtt.Message) {
		c.inbox.Add(1)
		defer c.inbox.Done()
		if c.ctx.Err() != nil {
			return
		}
		// синхронно: вычислитель требует монотонного времени
		c.handleMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		c.logger.WithFields(map[string]interface{}{
			"topic": c.config.FixTopic,
			"error": token.Error(),
		}).Error("Failed to subscribe to fix topic")
		return
	}
	c.logger.WithFields(map[string]interface{}{
		"broker": c.config.URL,
		"topic":  c.config.FixTopic,
	}).Info("Subscribed to fix topic")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.setConnected(false)
	c.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
}

func (c *Client) setConnected(v bool) {
	c.connected.Store(v)
	status := 0.0
	if v {
		status = 1
	}
	metrics.MQTTConnectionStatus.Set(status)
}

// Connect открывает соединение и ждет первой подписки
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.URL).Info("Connecting to MQTT broker")

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	select {
	case <-c.ready:
		return nil
	case <-time.After(connectTimeout):
		return fmt.Errorf("connection timeout after %s", connectTimeout)
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// Disconnect дожидается обработки принятых отсчетов и закрывает соединение
func (c *Client) Disconnect() {
	c.cancel()
	if c.client.IsConnected() {
		c.client.Disconnect(quiesceMillis)
	}
	c.inbox.Wait()
	c.setConnected(false)

	c.logger.WithFields(map[string]interface{}{
		"received":  c.received.Load(),
		"delivered": c.delivered.Load(),
	}).Info("MQTT client disconnected")
}

// IsConnected состояние соединения с брокером
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client.IsConnected()
}

func (c *Client) handleMessage(topic string, payload []byte) {
	c.received.Add(1)
	metrics.MQTTMessagesReceived.Inc()

	fix, err := c.parser.Parse(topic, payload)
	if err != nil {
		c.rejected.Add(1)
		metrics.MQTTParseErrors.Inc()
		c.logger.WithFields(map[string]interface{}{
			"topic":        topic,
			"error":        err,
			"payload_size": len(payload),
		}).Warn("Failed to parse fix message")
		return
	}
	if c.handler == nil {
		return
	}

	if err := c.handler(fix); err != nil {
		c.handlerErrors.Add(1)
		c.logger.WithFields(map[string]interface{}{
			"device_id": fix.DeviceID,
			"time":      fix.State.Time,
			"error":     err,
		}).Error("Fix handler failed")
		return
	}
	c.delivered.Add(1)
}

// Stats снимок счетчиков клиента
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Connected:     c.connected.Load(),
		Broker:        c.config.URL,
		Topic:         c.config.FixTopic,
		Received:      c.received.Load(),
		Rejected:      c.rejected.Load(),
		HandlerErrors: c.handlerErrors.Load(),
		Delivered:     c.delivered.Load(),
	}
}
