package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/exius/internal/flagx"
	"github.com/dmitrijs2005/exius/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations use timex.Duration so
// both "15m" and integer nanoseconds are accepted. Zero values leave the
// corresponding Config field untouched.
type FileConfig struct {
	HTTPAddr            string         `json:"http_addr" yaml:"http_addr"`
	GRPCAddr            string         `json:"grpc_addr" yaml:"grpc_addr"`
	DatabaseDSN         string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey           string         `json:"secret_key" yaml:"secret_key"`
	UploadTokenValidity timex.Duration `json:"upload_token_validity" yaml:"upload_token_validity"`
	RequestTimeout      timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	StorageBackend      string         `json:"storage_backend" yaml:"storage_backend"`
	S3RootUser          string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword      string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket            string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region            string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint      string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	ShareLinkValidity   timex.Duration `json:"share_link_validity" yaml:"share_link_validity"`
	GitHubAdminToken    string         `json:"github_admin_token" yaml:"github_admin_token"`
	GitHubOrg           string         `json:"github_org" yaml:"github_org"`
	GitHubBaseURL       string         `json:"github_base_url" yaml:"github_base_url"`
	Debug               bool           `json:"debug" yaml:"debug"`
}

// parseFile loads configuration values from the file named by -c/-config or
// EXIUS_CONFIG. Files ending in .yaml or .yml are decoded as YAML, anything
// else as JSON. An unreadable or malformed file panics.
func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.UploadTokenValidity.Duration > 0 {
		config.UploadTokenValidity = c.UploadTokenValidity.Duration
	}
	if c.RequestTimeout.Duration > 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.ShareLinkValidity.Duration > 0 {
		config.ShareLinkValidity = c.ShareLinkValidity.Duration
	}
	setString(&config.GitHubAdminToken, c.GitHubAdminToken)
	setString(&config.GitHubOrg, c.GitHubOrg)
	setString(&config.GitHubBaseURL, c.GitHubBaseURL)
	if c.Debug {
		config.Debug = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
