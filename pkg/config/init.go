package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the commented configuration file written by `sftsd init`.
const sampleConfig = `# sfts Coordinator Configuration File
#
# All options can be overridden with environment variables using the
# SFTS_ prefix and underscores for nested keys, e.g.
#   SFTS_LOGGING_LEVEL=DEBUG
#   SFTS_SERVER_PORT=9000

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: INFO
  # Log format: text or json
  format: text
  # Log destination: stdout, stderr, or a file path
  output: stdout

server:
  # HTTP port for the coordinator endpoints
  port: 8080
  # Maximum duration for reading a request, including chunk bodies
  read_timeout: 2m
  # Maximum chunk upload body size
  max_body_size: 100MiB
  # Graceful shutdown budget
  shutdown_timeout: 5s

database:
  # Transfer persistence backend: sqlite or postgres
  type: sqlite
  sqlite:
    # Defaults to $XDG_CONFIG_HOME/sfts/transfers.db when empty
    path: ""
  # postgres:
  #   host: localhost
  #   port: 5432
  #   database: sfts
  #   user: sfts
  #   password: secret
  #   sslmode: disable

staging:
  # Directory for staged chunks and assembled files.
  # Defaults to $XDG_DATA_HOME/sfts/staging when empty.
  path: ""

metrics:
  # Expose Prometheus metrics on GET /metrics
  enabled: false

sweep:
  # How often overdue transfers are checked
  interval: 1h
  # How long a transfer may stay active after registration
  max_age: 1h
`

// InitConfig creates a sample configuration file at the default location.
// It returns the path of the created file.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
