package retention

import "github.com/eleven-am/retention/internal/domain"

type Config = domain.Config

type RaftConfig = domain.RaftConfig

type StorageConfig = domain.StorageConfig

type ExpiryConfig = domain.ExpiryConfig

type TransportConfig = domain.TransportConfig

func DefaultConfig() *Config {
	return domain.DefaultConfig()
}

// LoadConfig reads a JSON config file; unset fields take their defaults.
func LoadConfig(path string) (*Config, error) {
	return domain.LoadConfig(path)
}
