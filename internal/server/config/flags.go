package config

import (
	"flag"
	"fmt"
	"os"

	"github.com/dmitrijs2005/exius/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    HTTP bind address (e.g., ":8080")
//	-grpc string gRPC health bind address
//	-d string    PostgreSQL DSN
//	-s string    JWT HMAC secret key
//	-t duration  upload token validity
//	-storage     storage backend, "s3" or "memory"
//	-u string    S3 root user
//	-p string    S3 root password
//	-b string    S3 bucket name
//	-g string    S3 region
//	-e string    S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-org string  GitHub organization owning relay repositories
//	-debug       enable debug logging
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with the config file flags.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-grpc", "-d", "-s", "-t", "-storage", "-u", "-p", "-b", "-g", "-e", "-org", "-debug",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run HTTP server")
	fs.StringVar(&config.GRPCAddr, "grpc", config.GRPCAddr, "address and port to run gRPC health server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.UploadTokenValidity, "t", config.UploadTokenValidity, "upload token validity")
	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "storage backend (s3|memory)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.GitHubOrg, "org", config.GitHubOrg, "GitHub organization")
	fs.BoolVar(&config.Debug, "debug", config.Debug, "debug logging")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if config.StorageBackend != StorageS3 && config.StorageBackend != StorageMemory {
		panic(fmt.Sprintf("unknown storage backend %q", config.StorageBackend))
	}
}
