package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/gravixlayer/llm-wars/internal/arena"
	"github.com/gravixlayer/llm-wars/internal/config"
	"github.com/gravixlayer/llm-wars/internal/gateway"
	"github.com/gravixlayer/llm-wars/internal/upstream"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		log.WithField("error", err.Error()).Fatal("Failed to load configuration")
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	client := upstream.New(cfg.BaseURL, cfg.APIKey, cfg.RequestTimeout)
	orc := arena.New(client, cfg.StreamWatchdog)
	handler := gateway.NewHandler(orc, client, cfg.KeepaliveInterval, cfg.KeepaliveStale)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gateway.RequestLogger())
	handler.Register(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithFields(log.Fields{
		"addr":     addr,
		"base_url": cfg.BaseURL,
		"event":    "startup",
	}).Info("llm-wars server starting")

	if err := r.Run(addr); err != nil {
		log.WithField("error", err.Error()).Fatal("Server exited")
	}
}
