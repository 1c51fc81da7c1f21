package photomatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultPublishPrefix is the topic prefix used when neither
// MQTT_PUBLISH_PREFIX nor mqtt.publishPrefix is set.
const DefaultPublishPrefix = "photomatch"

// SolveRequest asks for a camera solve of one photo. The payload of a solve
// command may override the initial camera; an empty payload uses the stored one.
type SolveRequest struct {
	SceneID int              `json:"sceneId"`
	PhotoID int              `json:"photoId"`
	Initial *CameraTransform `json:"initial,omitempty"`
}

// SolveCommandHandler is called for every solve command received
type SolveCommandHandler func(req SolveRequest)

// MQTTClient manages the MQTT connection and the solve command subscription
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	prefix      string
	handler     SolveCommandHandler
	isConnected bool
	mu          sync.RWMutex
}

// ResolvePublishPrefix picks MQTT_PUBLISH_PREFIX, then mqtt.publishPrefix,
// then DefaultPublishPrefix.
func ResolvePublishPrefix(config *Config) string {
	if prefix := os.Getenv("MQTT_PUBLISH_PREFIX"); prefix != "" {
		return prefix
	}
	if config != nil && config.MQTT.PublishPrefix != "" {
		return config.MQTT.PublishPrefix
	}
	return DefaultPublishPrefix
}

// InitMQTT creates the MQTT client and starts connecting in the background
// until ctx is done. If neither MQTT_BROKER nor mqtt.broker is set, MQTT is
// disabled and this returns nil.
func InitMQTT(ctx context.Context, config *Config, handler SolveCommandHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Scenes) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no scene configuration provided")
	}

	client := &MQTTClient{
		config:  config,
		prefix:  ResolvePublishPrefix(config),
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "photomatch"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false) // solves run concurrently

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connect(ctx)

	return client, nil
}

// connect waits for the first connection. paho keeps retrying every
// ConnectRetryInterval, so the token only completes once connected or
// after Disconnect.
func (c *MQTTClient) connect(ctx context.Context) {
	log.Println("Connecting to MQTT broker...")
	token := c.client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		log.Println("MQTT connect abandoned: shutting down")
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("MQTT connection failed: %v", err)
		return
	}
	log.Println("Successfully connected to MQTT broker")
	c.setConnected(true)
}

// SolveTopic is the wildcard filter for solve commands.
func (c *MQTTClient) SolveTopic() string {
	return c.prefix + "/scene/+/photo/+/solve"
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)

	topic := c.SolveTopic()
	log.Printf("MQTT connected, subscribing to %s", topic)
	token := client.Subscribe(topic, 1, c.handleSolveMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", topic, token.Error())
	} else {
		log.Printf("Successfully subscribed to %s", topic)
	}
}

// onConnectionLost is called when the MQTT connection is lost
// Auto-reconnect is enabled, so this is typically a transient event
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// handleSolveMessage turns a solve command into a SolveRequest
func (c *MQTTClient) handleSolveMessage(client mqtt.Client, msg mqtt.Message) {
	req, err := ParseSolveCommand(c.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		log.Printf("Ignoring solve command on %s: %v", msg.Topic(), err)
		return
	}
	log.Printf("Received solve command for scene %d photo %d", req.SceneID, req.PhotoID)

	if c.handler != nil {
		c.handler(req)
	}
}

// ParseSolveCommand reads the scene and photo ids from a topic of the form
// {prefix}/scene/{scene}/photo/{photo}/solve. The payload is either empty
// or a JSON object with an optional "initial" camera.
func ParseSolveCommand(prefix, topic string, payload []byte) (SolveRequest, error) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return SolveRequest{}, fmt.Errorf("topic %q does not start with %q", topic, prefix)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 5 || parts[0] != "scene" || parts[2] != "photo" || parts[4] != "solve" {
		return SolveRequest{}, fmt.Errorf("unexpected topic layout %q", topic)
	}
	sceneID, err := strconv.Atoi(parts[1])
	if err != nil {
		return SolveRequest{}, fmt.Errorf("scene id %q: %w", parts[1], err)
	}
	photoID, err := strconv.Atoi(parts[3])
	if err != nil {
		return SolveRequest{}, fmt.Errorf("photo id %q: %w", parts[3], err)
	}

	req := SolveRequest{}
	if len(strings.TrimSpace(string(payload))) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return SolveRequest{}, fmt.Errorf("parsing payload: %w", err)
		}
	}
	req.SceneID, req.PhotoID = sceneID, photoID
	return req, nil
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect closes the MQTT connection and stops any pending connect
// retries.
func (c *MQTTClient) Disconnect() {
	if c.client == nil {
		return
	}
	log.Println("Disconnecting from MQTT broker...")
	c.client.Disconnect(250)
	c.setConnected(false)
}

// Prefix returns the topic prefix in use
func (c *MQTTClient) Prefix() string {
	return c.prefix
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient around a provided mqtt.Client
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler SolveCommandHandler) *MQTTClient {
	return &MQTTClient{
		client:  client,
		config:  config,
		prefix:  ResolvePublishPrefix(config),
		handler: handler,
	}
}
