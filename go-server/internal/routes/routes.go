package route

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fonsecaaso/goodproducts/go-server/config"
	"github.com/fonsecaaso/goodproducts/go-server/internal/handler"
	"github.com/fonsecaaso/goodproducts/go-server/internal/middleware"
	"github.com/fonsecaaso/goodproducts/go-server/internal/token"
	"github.com/fonsecaaso/goodproducts/go-server/internal/web"
)

// Dependencies are the collaborators the router wires into handlers
type Dependencies struct {
	Config   *config.Config
	Sessions middleware.SessionStore
	Signer   *token.Signer
	Limiter  middleware.Limiter
}

func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	r := gin.Default()
	r.SetHTMLTemplate(tmpl)
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.StaticFS("/static", web.Static())

	sessionOpts := middleware.SessionOptions{
		Store:  deps.Sessions,
		Signer: deps.Signer,
		TTL:    deps.Config.SessionIdleTimeout,
		Secure: deps.Config.Environment == "production",
	}
	sessions := middleware.SessionMiddleware(sessionOpts)
	limit := middleware.RateLimit(deps.Limiter)
	// submit routes are limited before the session is started
	startSession := middleware.RequireSession(sessionOpts, nil)
	startLimitedSession := middleware.RequireSession(sessionOpts, deps.Limiter)
	products := handler.NewProductHandler()

	page := r.Group("/", sessions)
	page.GET("", products.Page)
	page.POST("submit", limit, startSession, products.SubmitForm)

	api := r.Group("/api")
	api.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.CORSAllowOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !allowsAnyOrigin(deps.Config.CORSAllowOrigins),
		MaxAge:           12 * time.Hour,
	}))
	api.Use(sessions)
	api.GET("/session", products.GetSession)
	api.PUT("/session/fields", startLimitedSession, products.UpdateFields)
	api.POST("/session/submit", limit, startSession, products.Submit)

	return r, nil
}

// cors rejects credentials combined with a wildcard origin
func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
