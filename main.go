package main

import (
	"net/http"

	"github.com/luis-arellano/simple-google-docs/config"
	"github.com/luis-arellano/simple-google-docs/pkg/logger"
	"github.com/luis-arellano/simple-google-docs/router"
	"github.com/luis-arellano/simple-google-docs/socket"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	cfg := config.Load()

	hub := socket.NewHub()
	go hub.Run()

	handler := router.Setup(hub, cfg.AllowedOrigin)

	logger.Sugar.Infof("Collaboration server listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		logger.Sugar.Fatalf("Server exited: %v", err)
	}
}
