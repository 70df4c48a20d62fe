// Package config carries the two configuration layers of the service:
// the immutable bootstrap read from the environment at startup, and the
// mutable settings store persisted as JSON on disk.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Sbussiso/OpenSentry/internal/platform/paths"
	"github.com/Sbussiso/OpenSentry/internal/version"
)

// DefaultSecret is the out-of-the-box session secret. Startup logs a
// warning when it is still in use.
const DefaultSecret = "change-this-in-prod"

// Service is the bootstrap configuration. It is read once in main and
// never mutated afterwards; runtime-tunable state lives in the Store.
type Service struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ConfigPath  string `yaml:"config_path"`
	SnapshotDir string `yaml:"snapshot_dir"`

	Secret        string `yaml:"secret"`
	AdminUser     string `yaml:"user"`
	AdminPass     string `yaml:"pass"`
	AdminPassHash string `yaml:"pass_hash"`
	APIToken      string `yaml:"api_token"`

	DeviceName string `yaml:"device_name"`
	Version    string `yaml:"-"`

	CameraIndex  int    `yaml:"camera_index"`
	CameraDevice string `yaml:"camera_device"`
	CameraWidth  int    `yaml:"camera_width"`
	CameraHeight int    `yaml:"camera_height"`
	CameraFPS    int    `yaml:"camera_fps"`
	CameraMJPEG  bool   `yaml:"camera_mjpeg"`
	CameraBuffer int    `yaml:"camera_buffer"`

	Placeholder bool   `yaml:"placeholder"`
	DisableMDNS bool   `yaml:"disable_mdns"`
	NATSUrl     string `yaml:"nats_url"`

	LogLevel  string `yaml:"log_level"`
	LogBuffer int    `yaml:"log_buffer"`
}

func defaults() *Service {
	return &Service{
		Host:        "0.0.0.0",
		Port:        5000,
		ConfigPath:  paths.DefaultConfigFile,
		SnapshotDir: paths.DefaultSnapshotDir,
		Secret:      DefaultSecret,
		AdminUser:   "admin",
		AdminPass:   "admin",
		DeviceName:  version.Name,
		Version:     version.Number,
		CameraIndex: 0,
		CameraMJPEG: true,
		LogLevel:    "info",
		LogBuffer:   500,
	}
}

// FromEnv builds the bootstrap config. Precedence, lowest to highest:
// built-in defaults, the optional YAML file named by
// OPENSENTRY_CONFIG_FILE, then individual OPENSENTRY_* variables.
func FromEnv() (*Service, error) {
	s := defaults()

	if path := os.Getenv("OPENSENTRY_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(s)
	return s, nil
}

func applyEnv(s *Service) {
	envStr("OPENSENTRY_HOST", &s.Host)
	envInt("OPENSENTRY_PORT", &s.Port)
	envStr("OPENSENTRY_CONFIG", &s.ConfigPath)
	envStr("OPENSENTRY_SNAPSHOT_DIR", &s.SnapshotDir)

	envStr("OPENSENTRY_SECRET", &s.Secret)
	envStr("OPENSENTRY_USER", &s.AdminUser)
	envStr("OPENSENTRY_PASS", &s.AdminPass)
	envStr("OPENSENTRY_PASS_HASH", &s.AdminPassHash)
	envStr("OPENSENTRY_API_TOKEN", &s.APIToken)

	envStr("OPENSENTRY_DEVICE_NAME", &s.DeviceName)
	envStr("OPENSENTRY_VERSION", &s.Version)

	envInt("OPENSENTRY_CAMERA_INDEX", &s.CameraIndex)
	envStr("OPENSENTRY_CAMERA_DEVICE", &s.CameraDevice)
	envInt("OPENSENTRY_CAMERA_WIDTH", &s.CameraWidth)
	envInt("OPENSENTRY_CAMERA_HEIGHT", &s.CameraHeight)
	envInt("OPENSENTRY_CAMERA_FPS", &s.CameraFPS)
	envBool("OPENSENTRY_CAMERA_MJPEG", &s.CameraMJPEG)
	envInt("OPENSENTRY_CAMERA_BUFFER", &s.CameraBuffer)

	envBool("OPENSENTRY_PLACEHOLDER", &s.Placeholder)
	envBool("OPENSENTRY_DISABLE_MDNS", &s.DisableMDNS)
	envStr("OPENSENTRY_NATS_URL", &s.NATSUrl)

	envStr("OPENSENTRY_LOG_LEVEL", &s.LogLevel)
	envInt("OPENSENTRY_LOG_BUFFER", &s.LogBuffer)
}

// Addr returns the listen address as host:port.
func (s *Service) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DefaultSecretInUse reports whether the session secret was left at its
// shipped default.
func (s *Service) DefaultSecretInUse() bool {
	return s.Secret == DefaultSecret
}

func envStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		}
	}
}
