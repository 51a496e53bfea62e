// Package config loads runtime configuration for exius-cli.
//
// Sources, in increasing precedence: built-in defaults, an optional JSON file
// (-c/-config or EXIUS_CONFIG), EXIUS_SERVER_URL, and the -a/-t flags.
//
//	{
//	  "server_url": "https://relay.example.org",
//	  "request_timeout": "30s"
//	}
package config
