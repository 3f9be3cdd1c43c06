package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	LogZapMode               string        `mapstructure:"LOG_ZAP_MODE"`
	PrintConfigurationToLogs string        `mapstructure:"PRINT_CONFIGURATION_TO_LOGS"`
	RPCPort                  int           `mapstructure:"RPC_PORT"`
	PolygonNodeUrl           string        `mapstructure:"POLYGON_NODE_URL"`
	TokenContractAddress     string        `mapstructure:"TOKEN_CONTRACT_ADDRESS"`
	ExplorerApiUrl           string        `mapstructure:"EXPLORER_API_URL"`
	ExplorerApiKey           string        `mapstructure:"EXPLORER_API_KEY" json:"-"`
	ExplorerChainId          uint64        `mapstructure:"EXPLORER_CHAIN_ID"`
	ExplorerTimeout          time.Duration `mapstructure:"EXPLORER_TIMEOUT"`
	LedgerCacheTTL           time.Duration `mapstructure:"LEDGER_CACHE_TTL"`
	LedgerCachePath          string        `mapstructure:"LEDGER_CACHE_PATH"`
}

var defaults = map[string]any{
	"LOG_ZAP_MODE":                "production",
	"PRINT_CONFIGURATION_TO_LOGS": "false",
	"RPC_PORT":                    8000,
	"POLYGON_NODE_URL":            "https://polygon-rpc.com",
	"TOKEN_CONTRACT_ADDRESS":      "0x1a9b54a3075119f1546c52ca0940551a6ce5d2d0",
	"EXPLORER_API_URL":            "https://api.polygonscan.com/api",
	"EXPLORER_API_KEY":            "",
	"EXPLORER_CHAIN_ID":           0,
	"EXPLORER_TIMEOUT":            "30s",
	"LEDGER_CACHE_TTL":            "0s",
	"LEDGER_CACHE_PATH":           "./db/badger/ledger",
}

var lock = &sync.Mutex{}
var config *Config

var Get = get

func get() Config {
	if config == nil {
		lock.Lock()
		defer lock.Unlock()
		if config == nil {
			c := loadConfig()
			config = &c
		}
	}
	return *config
}

func loadConfig() Config {
	viperAddConfigFile()
	viperAddDefaults()
	viperAddEnv()
	cfg := initializeCfg()
	debugConfig(cfg)
	return cfg
}

func viperAddConfigFile() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("env")
}

func viperAddDefaults() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

func viperAddEnv() {
	viper.AutomaticEnv()
	// Bind every field explicitly, AutomaticEnv alone misses keys absent from the config file (https://github.com/spf13/viper/issues/584)
	fieldsOfConfig := reflect.TypeOf(Config{})
	for i := 0; i < fieldsOfConfig.NumField(); i++ {
		mapStructureVal := fieldsOfConfig.Field(i).Tag.Get("mapstructure")
		if err := viper.BindEnv(mapStructureVal); err != nil {
			panic(fmt.Sprintf("Error binding env val '%v': %v", mapStructureVal, err))
		}
	}
}

func initializeCfg() Config {
	var cfg Config
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Sprintf("fatal error reading config file: %v", err))
		}
	}

	err = viper.Unmarshal(&cfg)
	if err != nil {
		panic(fmt.Sprintf("error unmarshaling config: %v", err))
	}
	return cfg
}

func debugConfig(cfg Config) {
	if cfg.PrintConfigurationToLogs != "true" {
		return
	}
	b, err := json.Marshal(cfg)
	result := string(b)
	if err != nil {
		result = "[FAILED TO CONVERT CONF TO STRING]"
	}
	zap.L().Info("App configuration", zap.String("config", result))
}
