package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/mikepea/smartmarks/pkg/smartmarks/config"
	"github.com/mikepea/smartmarks/pkg/smartmarks/server"
)

// @title Smartmarks API
// @version 1.0
// @description A personal bookmark manager with live updates across sessions.

// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token or API key. Format: "Bearer {token}"

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "smartmarks: %v\n", err)
		os.Exit(1)
	}

	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []fx.Option{
		fx.Supply(cfg),
		server.Module,
	}
	if !cfg.Dev {
		opts = append(opts, fx.NopLogger)
	}

	fx.New(opts...).Run()
}
