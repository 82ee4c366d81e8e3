package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTClient wraps the autopaho ConnectionManager for the guide agent.
// Topics live under orion/guide/<device>/.
type MQTTClient struct {
	cm        *autopaho.ConnectionManager
	brokerURL string
	clientID  string
	deviceID  string

	mu         sync.RWMutex
	connected  bool
	onConnUp   func()
	onConnDown func(error)

	cmdHandler func(topic string, payload []byte)
}

// NewMQTTClient creates a new MQTTClient for the guide agent.
func NewMQTTClient(brokerURL, clientID, deviceID string) *MQTTClient {
	return &MQTTClient{
		brokerURL: brokerURL,
		clientID:  clientID,
		deviceID:  deviceID,
	}
}

// Topic returns the device topic for suffix, e.g. "status" or "cmd/#".
func (m *MQTTClient) Topic(suffix string) string {
	return fmt.Sprintf("orion/guide/%s/%s", m.deviceID, suffix)
}

// SetOnConnectionUp sets the callback for when connection is established.
func (m *MQTTClient) SetOnConnectionUp(callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnUp = callback
}

// SetOnConnectionDown sets the callback for when connection is lost.
func (m *MQTTClient) SetOnConnectionDown(callback func(error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnDown = callback
}

// IsConnected returns the current connection state.
func (m *MQTTClient) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Connect establishes connection to the MQTT broker with auto-reconnect.
// Command subscriptions are renewed on every reconnect.
func (m *MQTTClient) Connect(ctx context.Context) error {
	serverURL, err := url.Parse(m.brokerURL)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		KeepAlive:                     20,
		CleanStartOnInitialConnection: false,
		SessionExpiryInterval:         60,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			log.Printf("INFO: MQTT connection established to %s", m.brokerURL)
			m.setConnected(true)

			m.mu.RLock()
			callback := m.onConnUp
			subscribed := m.cmdHandler != nil
			m.mu.RUnlock()

			if subscribed {
				go func() {
					if err := m.subscribe(context.Background()); err != nil {
						log.Printf("WARN: MQTT resubscribe failed: %v", err)
					}
				}()
			}
			if callback != nil {
				callback()
			}
		},
		OnConnectError: func(err error) {
			log.Printf("WARN: MQTT connection error: %v", err)
			if m.setConnected(false) {
				m.connectionDown(err)
			}
		},
		ClientConfig: paho.ClientConfig{
			ClientID: m.clientID,
			OnClientError: func(err error) {
				log.Printf("ERROR: MQTT client error: %v", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				reasonStr := ""
				if d.Properties != nil {
					reasonStr = d.Properties.ReasonString
				}
				log.Printf("WARN: MQTT server disconnect: code=%d reason=%s", d.ReasonCode, reasonStr)
				m.setConnected(false)
				m.connectionDown(fmt.Errorf("server disconnect: code=%d", d.ReasonCode))
			},
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					m.handleMessage(pr.Packet)
					return true, nil
				},
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return fmt.Errorf("failed to create MQTT connection: %w", err)
	}

	m.cm = cm

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := cm.AwaitConnection(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	return nil
}

// setConnected updates the connection flag and reports whether it was set before.
func (m *MQTTClient) setConnected(v bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.connected
	m.connected = v
	return was
}

func (m *MQTTClient) connectionDown(err error) {
	m.mu.RLock()
	callback := m.onConnDown
	m.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleMessage routes incoming command messages for this device to the handler.
func (m *MQTTClient) handleMessage(p *paho.Publish) {
	m.mu.RLock()
	handler := m.cmdHandler
	m.mu.RUnlock()

	if strings.HasPrefix(p.Topic, m.Topic("cmd/")) && handler != nil {
		handler(p.Topic, p.Payload)
	}
}

// Close disconnects from the MQTT broker.
func (m *MQTTClient) Close(ctx context.Context) error {
	if m.cm == nil {
		return nil
	}

	log.Printf("INFO: Disconnecting from MQTT broker...")

	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return m.cm.Disconnect(disconnectCtx)
}

// PublishHealth publishes a heartbeat with QoS 1.
func (m *MQTTClient) PublishHealth(ctx context.Context, health interface{}) error {
	return m.publish(ctx, "health", health, 1, false)
}

// PublishStatus publishes the navigator status. The message is retained so a
// Brain that subscribes late still sees where the robot is.
func (m *MQTTClient) PublishStatus(ctx context.Context, status interface{}) error {
	return m.publish(ctx, "status", status, 1, true)
}

// PublishReply publishes the outcome of a command.
func (m *MQTTClient) PublishReply(ctx context.Context, reply interface{}) error {
	return m.publish(ctx, "reply", reply, 1, false)
}

func (m *MQTTClient) publish(ctx context.Context, suffix string, v interface{}, qos byte, retain bool) error {
	if m.cm == nil {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", suffix, err)
	}

	_, err = m.cm.Publish(ctx, &paho.Publish{
		Topic:   m.Topic(suffix),
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", suffix, err)
	}

	return nil
}

// SubscribeCommands subscribes to the device command topics and calls handler for each message.
func (m *MQTTClient) SubscribeCommands(ctx context.Context, handler func(topic string, payload []byte)) error {
	if m.cm == nil {
		return fmt.Errorf("MQTT client not connected")
	}

	m.mu.Lock()
	m.cmdHandler = handler
	m.mu.Unlock()

	return m.subscribe(ctx)
}

func (m *MQTTClient) subscribe(ctx context.Context) error {
	topic := m.Topic("cmd/#")
	_, err := m.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{
				Topic: topic,
				QoS:   1,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	log.Printf("INFO: Subscribed to MQTT topic %s", topic)
	return nil
}
