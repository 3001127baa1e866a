package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/pinvault/internal/flagx"
	"github.com/dmitrijs2005/pinvault/internal/timex"
)

// ConfigEnvVar is consulted when no -c/-config flag is given.
const ConfigEnvVar = "PINVAULT_CLIENT_CONFIG"

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals
// accept "3s" strings or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	DatabasePath        string         `json:"database_path"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
}

// parseJson overlays Config with the values present in the JSON file. Missing
// keys keep their current value; read or decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags(ConfigEnvVar)
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.DatabasePath != "" {
		cfg.DatabasePath = jc.DatabasePath
	}
	if jc.OnlineCheckInterval.Duration != 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
}
