package push

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	h := &mqttHandle{clientID: "c1", prefix: "ummah"}

	assert.Equal(t, "ummah/server/register_user", h.serverTopic(EventRegisterUser))
	assert.Equal(t, "ummah/client/c1/notification", h.clientTopic(EventNotification))
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewMQTT("ummah").Connect(ctx, "tcp://127.0.0.1:1")
	assert.Error(t, err)
}

// Requires a broker, e.g. TEST_MQTT_BROKER=tcp://localhost:1883.
func TestMQTT_RoundTrip(t *testing.T) {
	broker := os.Getenv("TEST_MQTT_BROKER")
	if broker == "" {
		t.Skip("TEST_MQTT_BROKER not set")
	}
	ctx := context.Background()

	handle, err := NewMQTT("ummah-test").Connect(ctx, broker)
	require.NoError(t, err)
	defer handle.Disconnect()
	h := handle.(*mqttHandle)

	got := make(chan []byte, 1)
	handle.On(EventNotification, func(p []byte) { got <- p })

	server := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker).SetClientID("ummah-test-server"))
	require.True(t, server.Connect().WaitTimeout(5*time.Second))
	defer server.Disconnect(250)

	registered := make(chan []byte, 1)
	server.Subscribe(h.serverTopic(EventRegisterUser), qos, func(_ mqtt.Client, m mqtt.Message) {
		registered <- m.Payload()
	}).WaitTimeout(5 * time.Second)

	require.NoError(t, handle.Emit(EventRegisterUser, "u1"))
	select {
	case p := <-registered:
		var env envelope
		require.NoError(t, json.Unmarshal(p, &env))
		assert.Equal(t, h.clientID, env.ClientID)
		assert.Equal(t, "u1", env.Data)
	case <-time.After(5 * time.Second):
		t.Fatal("register_user not received")
	}

	// give the subscription time to settle
	time.Sleep(200 * time.Millisecond)
	server.Publish(h.clientTopic(EventNotification), qos, false, []byte(`{"title":"hi"}`)).WaitTimeout(5 * time.Second)
	select {
	case p := <-got:
		assert.JSONEq(t, `{"title":"hi"}`, string(p))
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}
}
