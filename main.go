package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cloudimg/internal/adapters/handler"
	"cloudimg/internal/app"

	"github.com/rs/zerolog/log"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := handler.NewRootCommand(app.New).ExecuteContext(ctx); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("cloudimg failed")
	}
}
