// Package server assembles the HTTP API and runs it.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/mikepea/smartmarks/pkg/smartmarks/apikeys"
	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/bookmarks"
	"github.com/mikepea/smartmarks/pkg/smartmarks/config"
	"github.com/mikepea/smartmarks/pkg/smartmarks/feed"
	"github.com/mikepea/smartmarks/pkg/smartmarks/importexport"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/metadata"
	"github.com/mikepea/smartmarks/pkg/smartmarks/oidc"
	"github.com/mikepea/smartmarks/pkg/smartmarks/store"
)

// Deps is everything the router needs. Google is nil when sign-in with
// Google is not configured.
type Deps struct {
	fx.In

	Config  *config.Config
	DB      *gorm.DB
	Store   *store.Store
	Broker  feed.Broker
	Fetcher *metadata.Fetcher
	Tokens  *auth.TokenManager
	Google  oidc.Authenticator
	Log     logger.Logger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), AccessLog(d.Log), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	metaHandler := metadata.NewHandler(d.Fetcher, d.Log)
	metaHandler.RegisterRoutes(&r.RouterGroup)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "smartmarks",
			})
		})
		api.GET("/readyz", readyz(d.DB))

		metaHandler.RegisterRoutes(api)

		// Combined auth middleware (accepts JWT or API key)
		combinedAuth := apikeys.CombinedAuthMiddleware(d.DB, d.Tokens, d.Log)

		authHandler := auth.NewHandler(d.DB, d.Tokens)
		authHandler.SetSessionMiddleware(combinedAuth)
		authHandler.RegisterRoutes(api.Group("/auth"))

		oidcHandler := oidc.NewHandler(d.DB, d.Tokens, d.Google, d.Config.BaseURL, stateKey(d.Config), d.Log)
		oidcHandler.RegisterRoutes(api.Group("/auth"))

		// API keys routes (JWT only - need to be logged in to manage keys)
		apiKeysHandler := apikeys.NewHandler(d.DB)
		apiKeysHandler.RegisterRoutes(api.Group("", d.Tokens.Middleware()))

		protected := api.Group("", combinedAuth)

		bookmarksHandler := bookmarks.NewHandler(d.Store, d.Broker, d.Config.ReorderConcurrency, d.Log)
		bookmarksHandler.RegisterRoutes(protected)

		importExportHandler := importexport.NewHandler(d.Store, d.Log)
		importExportHandler.RegisterRoutes(protected)
	}

	return r
}

func readyz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true})
	}
}

// stateKey signs the Google sign-in state. It is derived from the JWT
// secret so no extra setting is needed.
func stateKey(cfg *config.Config) []byte {
	return []byte("oidc-state:" + cfg.JWTSecret)
}
