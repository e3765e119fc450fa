package main

import (
	"os"
	"path/filepath"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/erc7824/nitrolite/walletprovider/pkg/log"
)

const (
	configDirPathEnv     = "WALLET_CONFIG_DIR_PATH"
	defaultConfigDirPath = "."
)

// Config represents the overall application configuration
type Config struct {
	BridgeURL   string `env:"WALLET_BRIDGE_URL" env-required:"true" env-description:"websocket URL of the wallet bridge"`
	MetricsAddr string `env:"WALLET_METRICS_ADDR" env-default:":4242"`
	RPCStream   string `env:"WALLET_RPC_STREAM" env-default:"metamask-provider"`
	Log         log.Config

	dotEnvPath   string
	dotEnvLoaded bool
}

// LoadConfig builds configuration from an optional .env file and the environment.
func LoadConfig() (*Config, error) {
	configDirPath := os.Getenv(configDirPathEnv)
	if configDirPath == "" {
		configDirPath = defaultConfigDirPath
	}

	conf := Config{dotEnvPath: filepath.Join(configDirPath, ".env")}
	conf.dotEnvLoaded = godotenv.Load(conf.dotEnvPath) == nil

	if err := cleanenv.ReadEnv(&conf); err != nil {
		return nil, err
	}
	if err := conf.Log.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}
