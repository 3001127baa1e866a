package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/pinvault/internal/flagx"
	"github.com/dmitrijs2005/pinvault/internal/timex"
)

// ConfigEnvVar names the environment variable consulted when no -c/-config
// flag is given.
const ConfigEnvVar = "PINVAULT_SERVER_CONFIG"

// JsonConfig is the on-disk shape of the server configuration. Durations
// accept both "10m" strings and integer nanoseconds.
type JsonConfig struct {
	EndpointAddrGRPC  string         `json:"endpoint_addr_grpc"`
	DatabaseDSN       string         `json:"database_dsn"`
	SecretKey         string         `json:"secret_key"`
	SessionTTL        timex.Duration `json:"session_ttl"`
	ResetTokenTTL     timex.Duration `json:"reset_token_ttl"`
	OtpTTL            timex.Duration `json:"otp_ttl"`
	MailBackend       string         `json:"mail_backend"`
	SESRegion         string         `json:"ses_region"`
	SESSender         string         `json:"ses_sender"`
	SESAccessKey      string         `json:"ses_access_key"`
	SESSecretKey      string         `json:"ses_secret_key"`
	LogLevel          string         `json:"log_level"`
	OtpRatePerMinute  float64        `json:"otp_rate_per_minute"`
	OtpBurst          int            `json:"otp_burst"`
	DispatcherWorkers int            `json:"dispatcher_workers"`
	DispatcherQueue   int            `json:"dispatcher_queue"`
}

// parseJson overlays values from the JSON file named by -c/-config (or
// ConfigEnvVar). Keys absent from the file leave the current value alone.
// An unreadable or malformed file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags(ConfigEnvVar)
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MailBackend, c.MailBackend)
	setString(&config.SESRegion, c.SESRegion)
	setString(&config.SESSender, c.SESSender)
	setString(&config.SESAccessKey, c.SESAccessKey)
	setString(&config.SESSecretKey, c.SESSecretKey)
	setString(&config.LogLevel, c.LogLevel)

	if c.SessionTTL.Duration > 0 {
		config.SessionTTL = c.SessionTTL.Duration
	}
	if c.ResetTokenTTL.Duration > 0 {
		config.ResetTokenTTL = c.ResetTokenTTL.Duration
	}
	if c.OtpTTL.Duration > 0 {
		config.OtpTTL = c.OtpTTL.Duration
	}
	if c.OtpRatePerMinute > 0 {
		config.OtpRatePerMinute = c.OtpRatePerMinute
	}
	if c.OtpBurst > 0 {
		config.OtpBurst = c.OtpBurst
	}
	if c.DispatcherWorkers > 0 {
		config.DispatcherWorkers = c.DispatcherWorkers
	}
	if c.DispatcherQueue > 0 {
		config.DispatcherQueue = c.DispatcherQueue
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
