package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"

	"github.com/shiquanshi/haikedasai/battle"
	"github.com/shiquanshi/haikedasai/config"
	"github.com/shiquanshi/haikedasai/oracle"
	"github.com/shiquanshi/haikedasai/transport"
)

func CreateServer(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.SetTrustedProxies([]string{"127.0.0.1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"})
	r.GET("/health", func(ctx *gin.Context) { ctx.String(200, "healthy") })

	r.Use(func(ctx *gin.Context) {
		origin := ctx.Request.Header.Get("Origin")

		if origin == "" || slices.Contains(allowedOrigins, origin) {
			ctx.Next()
			return
		}
		ctx.String(http.StatusForbidden, "forbidden origin")
		ctx.Abort()
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Authorization",
			"Upgrade",
			"Connection",
			"Sec-WebSocket-Key",
			"Sec-WebSocket-Version",
			"Sec-WebSocket-Extensions",
			"Sec-WebSocket-Protocol",
		},
	}))

	return r
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// logger setup
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, nil)
	if cfg.LogPretty {
		handler = tint.NewHandler(os.Stdout, nil)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	gin.SetMode(cfg.GinMode)

	// Dependencies
	questionOracle := oracle.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	hub := transport.NewHub(logger)
	registry := battle.NewRegistry()
	svc := battle.NewService(registry, questionOracle, hub, battle.NewTickerFactory(), battle.DefaultServiceConfig(), logger)
	battleHandler := battle.NewHandler(svc)

	r := CreateServer(cfg.AllowedOrigins)

	{
		battleGroup := r.Group("/battle")
		battleGroup.GET("/room/:roomId", battleHandler.RoomInfoHandler)
		battleGroup.GET("/rooms", battleHandler.RoomListHandler)
	}

	r.GET("/ws", transport.ServeWS(hub, svc, logger))

	logger.Info("server listening", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		log.Fatal(err)
	}
}
