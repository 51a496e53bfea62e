package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/exius/internal/server"
	"github.com/dmitrijs2005/exius/internal/server/config"
)

func main() {
	log.SetPrefix("exius-server: ")

	ctx := context.Background()
	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	app.Run(ctx)
}
