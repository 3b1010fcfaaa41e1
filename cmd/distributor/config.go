package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Env variable names.
const (
	envHTTPPort           = "SERVICE_PORT_HTTP"
	envConfigPath         = "CONFIG_PATH"
	envRegistrationSecret = "REGISTRATION_SECRET"
	envRedisAddr          = "REDIS_ADDR"
	envPostgresDSN        = "POSTGRES_DSN"
)

// Config holds the full distributor configuration, loaded by LoadConfig
// from environment variables (ports, secrets, connection strings) and the
// optional YAML file at CONFIG_PATH (event bus and session map backend
// selection). Grounded on MyGateway/cmd/config.go's env-plus-YAML split.
type Config struct {
	HTTPPort           int
	RegistrationSecret string
	RedisAddr          string
	PostgresDSN        string

	EventBus   BackendChoice
	SessionMap BackendChoice
	NodeClient BackendChoice
}

// BackendChoice selects which concrete implementation a pluggable
// collaborator uses.
type BackendChoice string

const (
	BackendMemory BackendChoice = "memory"
	BackendLocal  BackendChoice = "local"
	BackendRedis  BackendChoice = "redis"
	BackendSQL    BackendChoice = "relational"
	BackendHTTP   BackendChoice = "http"
	BackendGRPC   BackendChoice = "grpc"
)

// yamlConfig is the root struct for YAML unmarshalling.
type yamlConfig struct {
	EventBus   string `yaml:"event_bus"`
	SessionMap string `yaml:"session_map"`
	NodeClient string `yaml:"node_client"`
}

// loadYAMLConfig reads and parses the YAML file at path. A missing file
// is not an error: every YAML-sourced field has a sensible default.
func loadYAMLConfig(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &yamlConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out yamlConfig
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadConfig builds the distributor's configuration from the environment
// and CONFIG_PATH. SERVICE_PORT_HTTP is required; REGISTRATION_SECRET,
// REDIS_ADDR and POSTGRES_DSN are optional and only required by the
// backends that consult them. CONFIG_PATH defaults to "config.yaml" in
// the working directory and its absence is not an error.
func LoadConfig() (*Config, error) {
	portStr := os.Getenv(envHTTPPort)
	port, err := strconv.Atoi(portStr)
	if err != nil || portStr == "" {
		return nil, fmt.Errorf("%s must be a valid port (1-65535)", envHTTPPort)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("%s must be 1-65535, got %d", envHTTPPort, port)
	}

	configPath := strings.TrimSpace(os.Getenv(envConfigPath))
	if configPath == "" {
		configPath = "config.yaml"
	}
	if !filepath.IsAbs(configPath) {
		abs, absErr := filepath.Abs(configPath)
		if absErr != nil {
			return nil, absErr
		}
		configPath = abs
	}
	raw, err := loadYAMLConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	eventBus := BackendChoice(strings.TrimSpace(raw.EventBus))
	if eventBus == "" {
		eventBus = BackendLocal
	}
	sessionMap := BackendChoice(strings.TrimSpace(raw.SessionMap))
	if sessionMap == "" {
		sessionMap = BackendMemory
	}
	if eventBus != BackendLocal && eventBus != BackendRedis {
		return nil, fmt.Errorf("event_bus must be %q or %q, got %q", BackendLocal, BackendRedis, eventBus)
	}
	if sessionMap != BackendMemory && sessionMap != BackendSQL {
		return nil, fmt.Errorf("session_map must be %q or %q, got %q", BackendMemory, BackendSQL, sessionMap)
	}
	nodeClient := BackendChoice(strings.TrimSpace(raw.NodeClient))
	if nodeClient == "" {
		nodeClient = BackendHTTP
	}
	if nodeClient != BackendHTTP && nodeClient != BackendGRPC {
		return nil, fmt.Errorf("node_client must be %q or %q, got %q", BackendHTTP, BackendGRPC, nodeClient)
	}

	redisAddr := os.Getenv(envRedisAddr)
	if eventBus == BackendRedis && redisAddr == "" {
		return nil, fmt.Errorf("%s is required when event_bus is %q", envRedisAddr, BackendRedis)
	}
	postgresDSN := os.Getenv(envPostgresDSN)
	if sessionMap == BackendSQL && postgresDSN == "" {
		return nil, fmt.Errorf("%s is required when session_map is %q", envPostgresDSN, BackendSQL)
	}

	return &Config{
		HTTPPort:           port,
		RegistrationSecret: os.Getenv(envRegistrationSecret),
		RedisAddr:          redisAddr,
		PostgresDSN:        postgresDSN,
		EventBus:           eventBus,
		SessionMap:         sessionMap,
		NodeClient:         nodeClient,
	}, nil
}
