package config

import "os"

// Secrets are usually injected by the deployment rather than written to a
// config file.
const (
	envDatabaseDSN      = "EXIUS_DATABASE_DSN"
	envSecretKey        = "EXIUS_SECRET_KEY"
	envS3RootUser       = "EXIUS_S3_ROOT_USER"
	envS3RootPassword   = "EXIUS_S3_ROOT_PASSWORD"
	envGitHubAdminToken = "EXIUS_GITHUB_ADMIN_TOKEN"
)

func parseEnv(config *Config) {
	lookup := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	lookup(envDatabaseDSN, &config.DatabaseDSN)
	lookup(envSecretKey, &config.SecretKey)
	lookup(envS3RootUser, &config.S3RootUser)
	lookup(envS3RootPassword, &config.S3RootPassword)
	lookup(envGitHubAdminToken, &config.GitHubAdminToken)
}
