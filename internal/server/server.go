package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	cartsvc "github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/config"
	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	"github.com/smallbiznis/cartloop/internal/recovery"
	"github.com/smallbiznis/cartloop/internal/statestore"
	"github.com/smallbiznis/cartloop/internal/user"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(VersionHeaderMiddleware(cfg.AppVersion))
	r.Use(RequestLogMiddleware(log))
	r.Use(MetricsMiddleware())
	r.Use(SessionMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	gateway        *statestore.Gateway
	cartSvc        *cartsvc.Service
	recoverySvc    *recovery.Service
	integrationSvc integrationdomain.Service
	paymentSvc     paymentdomain.Service
	discountSvc    discountdomain.Service
	creds          jilt.CredentialSource
	users          user.Repository
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Gateway        *statestore.Gateway
	CartSvc        *cartsvc.Service
	RecoverySvc    *recovery.Service
	IntegrationSvc integrationdomain.Service
	PaymentSvc     paymentdomain.Service
	DiscountSvc    discountdomain.Service
	Creds          jilt.CredentialSource
	Users          user.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		log:            p.Log.Named("server"),
		genID:          p.GenID,
		gateway:        p.Gateway,
		cartSvc:        p.CartSvc,
		recoverySvc:    p.RecoverySvc,
		integrationSvc: p.IntegrationSvc,
		paymentSvc:     p.PaymentSvc,
		discountSvc:    p.DiscountSvc,
		creds:          p.Creds,
		users:          p.Users,
	}

	svc.registerRecoveryRoutes()
	svc.registerIntegrationAPIRoutes()
	svc.registerCartRoutes()
	svc.registerCheckoutRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRecoveryRoutes() {
	s.engine.GET("/recover", s.Recover)
}

func (s *Server) registerIntegrationAPIRoutes() {
	s.engine.Any("/integration-api", s.IntegrationAPIAuth(), s.IntegrationAPI)
}

func (s *Server) registerCartRoutes() {
	cart := s.engine.Group("/cart")

	cart.GET("", s.GetCart)
	cart.POST("/items", s.AddCartItem)
	cart.PUT("/items/:token", s.UpdateCartItem)
	cart.DELETE("/items/:token", s.RemoveCartItem)
	cart.POST("/discounts", s.ApplyCartDiscount)
	cart.DELETE("/discounts/:code", s.RemoveCartDiscount)
	cart.PUT("/gateway", s.SetCartGateway)
	cart.PUT("/customer", s.SetCartCustomer)
	cart.DELETE("", s.EmptyCart)
}

func (s *Server) registerCheckoutRoutes() {
	s.engine.POST("/checkout", s.Checkout)
	s.engine.POST("/session/login", s.SessionLogin)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.GET("/integration", s.AdminGetIntegration)
	admin.PUT("/integration/secret-key", s.AdminSetSecretKey)
	admin.PUT("/payments/:id/status", s.AdminUpdatePaymentStatus)
}
