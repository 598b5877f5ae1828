package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/faceid/internal/api/handlers"
	"github.com/your-org/faceid/internal/api/ws"
	"github.com/your-org/faceid/internal/auth"
)

type RouterConfig struct {
	APIKey     string
	Registrar  handlers.Registrar
	Recognizer handlers.Recognizer
	Maintainer handlers.Maintainer
	// Checks are pinged by /readyz.
	Checks      map[string]handlers.Pinger
	Hub         *ws.Hub
	RateLimiter *RateLimiter
	// MaxUploadBytes caps request bodies on upload routes; 0 disables the cap.
	MaxUploadBytes int64
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Uploads run the detector and encoder, so they are rate limited.
	uploads := v1.Group("")
	if cfg.RateLimiter != nil {
		uploads.Use(cfg.RateLimiter.Middleware())
	}
	if cfg.MaxUploadBytes > 0 {
		uploads.Use(BodyLimit(cfg.MaxUploadBytes))
	}

	idH := handlers.NewIdentityHandler(cfg.Registrar, cfg.Maintainer)
	uploads.POST("/identities", idH.Register)
	uploads.POST("/identities/base64", idH.RegisterBase64)
	v1.GET("/identities", idH.List)
	v1.GET("/identities/:id", idH.Get)
	v1.GET("/identities/:id/image", idH.Image)
	v1.DELETE("/identities/:id", idH.Delete)
	v1.POST("/identities/delete", idH.DeleteMany)
	v1.GET("/integrity", idH.Integrity)
	v1.GET("/stats", idH.Stats)

	recH := handlers.NewRecognizeHandler(cfg.Recognizer)
	uploads.POST("/recognize", recH.Recognize)
	uploads.POST("/recognize/base64", recH.RecognizeBase64)

	return r
}
