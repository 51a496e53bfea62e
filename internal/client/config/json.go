package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/exius/internal/flagx"
	"github.com/dmitrijs2005/exius/internal/timex"
)

// JsonConfig is the on-disk shape of the CLI config file. Durations accept
// "30s" style strings or integer nanoseconds.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	RequestTimeout timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with the file named by -c/-config or EXIUS_CONFIG.
// Fields missing from the file keep their previous values. Read and decode
// errors panic.
func parseJson(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.RequestTimeout.Duration != 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}
