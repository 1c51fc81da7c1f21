package photomatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// solveHandlerMock records solve commands.
type solveHandlerMock struct {
	mock.Mock
}

func (m *solveHandlerMock) Handle(req SolveRequest) {
	m.Called(req)
}

func mqttTestConfig() *Config {
	return &Config{
		DataFile: "data.json",
		Scenes:   []SceneDefinition{{ID: 1, Shapes: testShapes()}},
	}
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(context.Background(), mqttTestConfig(), func(SolveRequest) {})
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestInitMQTT_NoScenes(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	config := &Config{MQTT: MQTTConfig{Broker: "tcp://localhost:1883"}}

	_, err := InitMQTT(context.Background(), config, func(SolveRequest) {})
	assert.Error(t, err)
}

func TestResolvePublishPrefix(t *testing.T) {
	tests := []struct {
		name   string
		env    string
		config *Config
		want   string
	}{
		{"default", "", nil, DefaultPublishPrefix},
		{"config", "", &Config{MQTT: MQTTConfig{PublishPrefix: "shelters"}}, "shelters"},
		{"env wins", "site/a", &Config{MQTT: MQTTConfig{PublishPrefix: "shelters"}}, "site/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MQTT_PUBLISH_PREFIX", tt.env)
			assert.Equal(t, tt.want, ResolvePublishPrefix(tt.config))
		})
	}
}

func TestParseSolveCommand(t *testing.T) {
	initial := DefaultCamera()

	tests := []struct {
		name    string
		topic   string
		payload string
		want    SolveRequest
		wantErr bool
	}{
		{
			name:  "empty payload",
			topic: "photomatch/scene/1/photo/2/solve",
			want:  SolveRequest{SceneID: 1, PhotoID: 2},
		},
		{
			name:    "whitespace payload",
			topic:   "photomatch/scene/3/photo/0/solve",
			payload: "  \n",
			want:    SolveRequest{SceneID: 3, PhotoID: 0},
		},
		{
			name:    "initial camera",
			topic:   "photomatch/scene/1/photo/2/solve",
			payload: `{"initial":{"fov":50,"position":{"x":200,"y":100,"z":400},"rotation":{"x":-0.44497866312686412,"y":0.4516334410795318,"z":0.10867903971378184}}}`,
			want:    SolveRequest{SceneID: 1, PhotoID: 2, Initial: &initial},
		},
		{
			name:    "topic ids win over payload ids",
			topic:   "photomatch/scene/1/photo/2/solve",
			payload: `{"sceneId":9,"photoId":9}`,
			want:    SolveRequest{SceneID: 1, PhotoID: 2},
		},
		{name: "other prefix", topic: "other/scene/1/photo/2/solve", wantErr: true},
		{name: "camera topic", topic: "photomatch/scene/1/photo/2/camera", wantErr: true},
		{name: "too short", topic: "photomatch/scene/1/solve", wantErr: true},
		{name: "scene not a number", topic: "photomatch/scene/x/photo/2/solve", wantErr: true},
		{name: "photo not a number", topic: "photomatch/scene/1/photo/y/solve", wantErr: true},
		{name: "bad payload", topic: "photomatch/scene/1/photo/2/solve", payload: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSolveCommand("photomatch", tt.topic, []byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMQTTClient_IsConnected(t *testing.T) {
	client := &MQTTClient{}
	assert.False(t, client.IsConnected(), "New client should not be connected")

	client.setConnected(true)
	assert.True(t, client.IsConnected())

	client.setConnected(false)
	assert.False(t, client.IsConnected())
}

func TestMQTTClient_SolveTopic(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	config := mqttTestConfig()
	config.MQTT.PublishPrefix = "shelters"

	client := newMQTTClientWithMock(NewMockClient(), config, nil)
	assert.Equal(t, "shelters", client.Prefix())
	assert.Equal(t, "shelters/scene/+/photo/+/solve", client.SolveTopic())
}

func TestMQTTClient_SolveCommandDispatch(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	handler := &solveHandlerMock{}
	handler.On("Handle", SolveRequest{SceneID: 1, PhotoID: 4}).Once()

	mockClient := NewMockClient()
	mockClient.SetConnected(true)
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), handler.Handle)
	client.onConnect(mockClient)

	assert.Equal(t, []string{"photomatch/scene/+/photo/+/solve"}, mockClient.Subscriptions())
	assert.True(t, client.IsConnected())

	assert.True(t, mockClient.SimulateMessage("photomatch/scene/1/photo/4/solve", nil))
	// Malformed commands never reach the handler.
	assert.True(t, mockClient.SimulateMessage("photomatch/scene/1/photo/x/solve", nil))
	assert.False(t, mockClient.SimulateMessage("photomatch/scene/1/photo/4/camera", nil))

	handler.AssertExpectations(t)
	handler.AssertNumberOfCalls(t, "Handle", 1)
}

func TestMQTTClient_NilHandlerDropsCommands(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mockClient := NewMockClient()
	mockClient.SetConnected(true)
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)
	client.onConnect(mockClient)

	assert.NotPanics(t, func() {
		mockClient.SimulateMessage("photomatch/scene/2/photo/5/solve", []byte(`{"initial":{"fov":30}}`))
	})
}

func TestInitMQTT_ClientsAreIndependent(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://127.0.0.1:1")
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := InitMQTT(ctx, mqttTestConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	defer first.Disconnect()

	cfg := mqttTestConfig()
	cfg.MQTT.PublishPrefix = "second"
	second, err := InitMQTT(ctx, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, second)
	defer second.Disconnect()

	assert.NotSame(t, first, second)
	assert.Equal(t, DefaultPublishPrefix, first.Prefix())
	assert.Equal(t, "second", second.Prefix())
}

// ----------------------------------------------------------------------------
// Connection
// ----------------------------------------------------------------------------

func TestMQTTClient_Connect(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mockClient := NewMockClient()
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)

	client.connect(context.Background())
	assert.True(t, client.IsConnected())
	assert.Eventually(t, func() bool {
		return len(mockClient.Subscriptions()) == 1
	}, time.Second, 10*time.Millisecond)

	client.Disconnect()
	assert.False(t, client.IsConnected())
	assert.False(t, mockClient.IsConnected())
}

func TestMQTTClient_ConnectError(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnectError(assert.AnError)
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)

	client.connect(context.Background())
	assert.False(t, client.IsConnected())
	assert.Empty(t, mockClient.Subscriptions())
}

func TestMQTTClient_ConnectStopsOnCancel(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnectDelay(time.Hour)
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		client.connect(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connect did not return after cancel")
	}
	assert.False(t, client.IsConnected())

	// Disconnect abandons the pending attempt.
	client.Disconnect()
	assert.False(t, mockClient.IsConnected())
}

func TestMQTTClient_ConnectDelayed(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")

	mockClient := NewMockClient()
	mockClient.SetConnectDelay(20 * time.Millisecond)
	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)
	mockClient.SetOnConnect(client.onConnect)

	client.connect(context.Background())
	assert.True(t, client.IsConnected())
	assert.True(t, mockClient.IsConnected())
}

func TestMQTTClient_SubscribeErrorIsLogged(t *testing.T) {
	mockClient := NewMockClient()
	mockClient.SetConnected(true)
	mockClient.SetSubscribeError(assert.AnError)

	client := newMQTTClientWithMock(mockClient, mqttTestConfig(), nil)
	client.onConnect(mockClient)

	assert.True(t, client.IsConnected())
	assert.Empty(t, mockClient.Subscriptions())
}
