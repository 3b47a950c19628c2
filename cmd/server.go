package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/flashmart/seckill/api"
	"github.com/flashmart/seckill/config"
)

func initializeRouter(b *seckillInstance) *gin.Engine {
	return api.NewAPI(b.engine).Router()
}

func startServer(router *gin.Engine, cfg config.ServerConfig) error {
	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	return router.Run(":" + cfg.Port)
}

// warmupLiveProducts seeds Redis stock counters for every product whose sale
// window is currently open, so the first wave of traffic never falls through
// to Postgres.
func warmupLiveProducts(ctx context.Context, b *seckillInstance) {
	warmed, err := b.engine.WarmupAllLive(ctx)
	if err != nil {
		log.Printf("Stock warmup error: %v", err)
		return
	}
	log.Printf(" [*] Warmed stock counters for %d live products", warmed)
}

// serverCommands returns the Cobra command responsible for starting the HTTP
// API server.
func serverCommands(b *seckillInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start seckill server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			router := initializeRouter(b)

			cfg, err := config.Fetch()
			if err != nil {
				log.Fatal(err)
			}

			warmupLiveProducts(ctx, b)

			if err := startServer(router, cfg.Server); err != nil {
				log.Fatal(err)
			}
		},
	}

	return cmd
}
