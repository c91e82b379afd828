// Package mqtt exposes the scale command set on an MQTT broker: commands received
// on <prefix>/command are answered on <prefix>/response, and the availability of
// the scale is published (retained) on <prefix>/status
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/fako1024/loadscale/pkg/command"
	"github.com/fako1024/loadscale/pkg/scale"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	defaultTopicPrefix       = "loadscale"

	statusOnline  = "online"
	statusOffline = "offline"
)

// Config denotes the broker connection settings
type Config struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Topics denotes the topics used for a scale
type Topics struct {
	prefix string
}

// Command returns the topic commands are received on
func (t Topics) Command() string {
	return t.prefix + "/command"
}

// Response returns the topic responses are published on
func (t Topics) Response() string {
	return t.prefix + "/response"
}

// Status returns the topic the availability is published on
func (t Topics) Status() string {
	return t.prefix + "/status"
}

// Handler denotes a connection to a broker answering commands via a dispatcher
type Handler struct {
	client     pahomqtt.Client
	dispatcher *command.Dispatcher
	topics     Topics
	qos        byte

	logger scale.Logger
}

// Connect connects to the broker and starts answering commands
func Connect(cfg Config, d *command.Dispatcher, logger scale.Logger) (*Handler, error) {
	h := newHandler(cfg, d, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(defaultConnectTimeout).
		SetWill(h.topics.Status(), statusOffline, cfg.QoS, true)

	// Subscriptions are (re-)established upon every (re-)connect
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		if err := h.subscribe(c); err != nil {
			h.logger.Errorf("%s", err)
			return
		}
		c.Publish(h.topics.Status(), h.qos, true, statusOnline)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		h.logger.Warnf("lost connection to broker %s: %s", cfg.Broker, err)
	})

	h.client = pahomqtt.NewClient(opts)
	token := h.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return h, nil
}

// Close publishes the offline status and disconnects from the broker
func (h *Handler) Close() {
	if h.client == nil {
		return
	}

	if h.client.IsConnected() {
		token := h.client.Publish(h.topics.Status(), h.qos, true, statusOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}
	h.client.Disconnect(defaultDisconnectQuiesce)
}

////////////////////////////////////////////////////////////////////////////////

func newHandler(cfg Config, d *command.Dispatcher, logger scale.Logger) *Handler {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	if logger == nil {
		logger = &scale.NullLogger{}
	}

	return &Handler{
		dispatcher: d,
		topics:     Topics{prefix: prefix},
		qos:        cfg.QoS,
		logger:     logger,
	}
}

func (h *Handler) subscribe(c pahomqtt.Client) error {
	token := c.Subscribe(h.topics.Command(), h.qos, func(c pahomqtt.Client, msg pahomqtt.Message) {
		payload := h.handleMessage(msg.Payload())
		c.Publish(h.topics.Response(), h.qos, false, payload)
	})
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout on %s", ErrSubscribeFailed, h.topics.Command())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// handleMessage decodes and executes a command, returning the encoded response
func (h *Handler) handleMessage(payload []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorf("MQTT command handler panic recovered: %v", r)
			out = encode(command.Response{Error: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	cmd, err := command.Parse(payload)
	if err != nil {
		h.logger.Warnf("received invalid command `%s`: %s", payload, err)
		return encode(command.Response{Error: err.Error()})
	}

	// Errors are conveyed in the response itself
	resp, _ := h.dispatcher.Handle(context.Background(), cmd)

	return encode(resp)
}

func encode(resp command.Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return data
}
