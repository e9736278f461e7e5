package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	quiesceMillis  = 250
)

// MQTT is a Channel backed by an MQTT broker. Client-to-server events are
// published on <prefix>/server/<event> wrapped in an envelope carrying the
// client id; server-to-client events arrive on <prefix>/client/<clientID>/<event>.
type MQTT struct {
	prefix string
}

// NewMQTT returns an MQTT channel using the given topic prefix.
func NewMQTT(prefix string) *MQTT {
	return &MQTT{prefix: prefix}
}

type envelope struct {
	ClientID string `json:"clientId"`
	Data     any    `json:"data"`
}

type mqttHandle struct {
	client   mqtt.Client
	clientID string
	prefix   string

	mu       sync.Mutex
	handlers map[string]func([]byte)
}

// Connect dials the broker at endpoint, e.g. tcp://broker:1883.
func (m *MQTT) Connect(ctx context.Context, endpoint string) (Handle, error) {
	h := &mqttHandle{
		clientID: "ummah-" + uuid.NewString(),
		prefix:   m.prefix,
		handlers: make(map[string]func([]byte)),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(endpoint)
	opts.SetClientID(h.clientID)
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.OnConnect = h.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("client_id", h.clientID).Msg("push connection lost")
	}
	h.client = mqtt.NewClient(opts)

	token := h.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		h.client.Disconnect(quiesceMillis)
		return nil, ctx.Err()
	case <-time.After(connectTimeout):
		h.client.Disconnect(quiesceMillis)
		return nil, fmt.Errorf("timed out connecting to push broker %s", endpoint)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to push broker: %w", err)
	}

	log.Info().Str("client_id", h.clientID).Str("endpoint", endpoint).Msg("push channel connected")
	return h, nil
}

func (h *mqttHandle) serverTopic(event string) string {
	return fmt.Sprintf("%s/server/%s", h.prefix, event)
}

func (h *mqttHandle) clientTopic(event string) string {
	return fmt.Sprintf("%s/client/%s/%s", h.prefix, h.clientID, event)
}

// onConnect restores every subscription after the initial connect and
// after each automatic reconnect.
func (h *mqttHandle) onConnect(c mqtt.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for event, fn := range h.handlers {
		h.subscribe(c, event, fn)
	}
}

func (h *mqttHandle) subscribe(c mqtt.Client, event string, fn func([]byte)) {
	topic := h.clientTopic(event)
	token := c.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		fn(msg.Payload())
	})
	go func() {
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", topic).Msg("push subscribe failed")
		}
	}()
}

func (h *mqttHandle) Emit(event string, payload any) error {
	body, err := json.Marshal(envelope{ClientID: h.clientID, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	token := h.client.Publish(h.serverTopic(event), qos, false, body)
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("timed out publishing %s", event)
	}
	return token.Error()
}

func (h *mqttHandle) On(event string, fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[event] = fn
	if h.client.IsConnectionOpen() {
		h.subscribe(h.client, event, fn)
	}
}

func (h *mqttHandle) Disconnect() {
	h.client.Disconnect(quiesceMillis)
	log.Info().Str("client_id", h.clientID).Msg("push channel disconnected")
}
