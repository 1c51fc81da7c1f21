package photomatch

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// CameraMessage is the payload published after a solve.
type CameraMessage struct {
	SolveID   string          `json:"solveId"`
	SceneID   int             `json:"sceneId"`
	PhotoID   int             `json:"photoId"`
	Camera    CameraTransform `json:"camera"`
	Error     float64         `json:"error"`
	Accepted  bool            `json:"accepted"`
	Links     int             `json:"links"`
	Timestamp int64           `json:"timestamp"`
}

type photoKey struct {
	scene, photo int
}

// Publisher publishes solved cameras to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	last          map[photoKey]*CameraMessage
	mu            sync.RWMutex
}

// NewPublisher creates a camera publisher. A nil client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultPublishPrefix
	}
	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
		last:          make(map[photoKey]*CameraMessage),
	}
}

// CameraTopic is the retained topic that carries the camera of one photo.
func (p *Publisher) CameraTopic(sceneID, photoID int) string {
	return fmt.Sprintf("%s/scene/%d/photo/%d/camera", p.publishPrefix, sceneID, photoID)
}

// PublishCamera publishes a solve outcome to the camera topic of the photo
// and to the {prefix}/solves feed.
func (p *Publisher) PublishCamera(sceneID, photoID int, res SolveResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	msg := &CameraMessage{
		SolveID:   res.ID,
		SceneID:   sceneID,
		PhotoID:   photoID,
		Camera:    res.Camera,
		Error:     res.Error,
		Accepted:  res.Accepted,
		Links:     res.Links,
		Timestamp: time.Now().Unix(),
	}

	p.mu.Lock()
	p.last[photoKey{sceneID, photoID}] = msg
	p.mu.Unlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling camera: %w", err)
	}

	if err := p.publish(p.CameraTopic(sceneID, photoID), p.retain, payload); err != nil {
		log.Printf("Error publishing camera for scene %d photo %d: %v", sceneID, photoID, err)
		return err
	}
	// The feed is an event stream, never retained.
	if err := p.publish(p.publishPrefix+"/solves", false, payload); err != nil {
		log.Printf("Error publishing solve feed: %v", err)
		return err
	}

	log.Printf("Published camera for scene %d photo %d: fov=%.1f error=%.3g", sceneID, photoID, res.Camera.FOV, res.Error)
	return nil
}

func (p *Publisher) publish(topic string, retain bool, payload []byte) error {
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// GetLast returns the last message published for a photo
func (p *Publisher) GetLast(sceneID, photoID int) (CameraMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	msg, ok := p.last[photoKey{sceneID, photoID}]
	if !ok {
		return CameraMessage{}, false
	}
	return *msg, true
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether camera messages are retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
