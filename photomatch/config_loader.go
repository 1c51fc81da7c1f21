package photomatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the full configuration file
type Config struct {
	DataFile string            `yaml:"dataFile" json:"dataFile"`
	DataDir  string            `yaml:"dataDir,omitempty" json:"dataDir,omitempty"` // Directory served under /file/
	HTTP     HTTPConfig        `yaml:"http,omitempty" json:"http,omitempty"`
	MQTT     MQTTConfig        `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Solver   SolverConfig      `yaml:"solver" json:"solver"`
	Scenes   []SceneDefinition `yaml:"scenes" json:"scenes"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// DefaultHTTPPort is used when http.port is not set
const DefaultHTTPPort = 8080

// Scene returns the scene definition with the given id
func (c *Config) Scene(id int) (*SceneDefinition, error) {
	for i := range c.Scenes {
		if c.Scenes[i].ID == id {
			return &c.Scenes[i], nil
		}
	}
	return nil, fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
}

// LoadConfig loads the configuration from a YAML file. Solver settings that
// the file leaves out keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Config{Solver: DefaultSolverConfig()}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if config.DataFile == "" {
		return nil, fmt.Errorf("dataFile is required")
	}
	if config.HTTP.Port == 0 {
		config.HTTP.Port = DefaultHTTPPort
	}
	if err := config.Solver.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(config.Scenes))
	for i, sc := range config.Scenes {
		if seen[sc.ID] {
			return nil, fmt.Errorf("scenes[%d]: duplicate scene id %d", i, sc.ID)
		}
		seen[sc.ID] = true
		for j, sh := range sc.Shapes {
			if _, err := sh.Geometry(); err != nil {
				return nil, fmt.Errorf("scenes[%d].shapes[%d]: %w", i, j, err)
			}
		}
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("scenes[%d]: %w", i, err)
		}
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
