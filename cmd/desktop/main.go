package main

import (
	"context"
	"log"

	"github.com/dealersoft/dealerdesk/internal/desktop"
	"github.com/dealersoft/dealerdesk/internal/desktop/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	app, err := desktop.NewApp(ctx, cfg)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)
}
