package routes

import (
	"github.com/gin-gonic/gin"

	"ballouchi/internal/authz"
	"ballouchi/internal/handlers"
	"ballouchi/internal/middleware"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Verify   *handlers.VerifyHandler
	User     *handlers.UserHandler
	Merchant *handlers.MerchantHandler
	Health   *handlers.HealthHandler
}

type Options struct {
	Tokens      *authz.TokenIssuer
	AdminAPIKey string
}

// SetupRoutes mounts the account API at the root and again under /api, the
// prefix the mobile client calls.
func SetupRoutes(r *gin.Engine, h Handlers, opts Options) *gin.Engine {
	r.GET("/healthz", h.Health.Status)

	mount(&r.RouterGroup, h, opts)
	mount(r.Group("/api"), h, opts)
	return r
}

func mount(g *gin.RouterGroup, h Handlers, opts Options) {
	// ---- public
	g.POST("/signup", h.Auth.Signup)
	g.POST("/signin", h.Auth.SignIn)
	g.POST("/verify", h.Verify.Verify)
	g.POST("/resend-code", h.Verify.ResendCode)

	// ---- admin
	g.DELETE("/delete-user", middleware.RequireAdminKey(opts.AdminAPIKey), h.User.DeleteUser)

	// ---- protected
	protected := g.Group("", middleware.AuthMiddleware(opts.Tokens))
	{
		protected.GET("/me", h.User.Me)
		protected.POST("/account-type", h.User.SetAccountType)
		protected.PUT("/location", h.User.UpdateLocation)
		protected.POST("/merchant", h.Merchant.Register)
	}
}
