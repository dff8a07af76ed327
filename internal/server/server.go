package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge/keyforge/internal/activation"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	"github.com/keyforge/keyforge/internal/config"
	"github.com/keyforge/keyforge/internal/coupon"
	coupondomain "github.com/keyforge/keyforge/internal/coupon/domain"
	"github.com/keyforge/keyforge/internal/ledger"
	ledgerdomain "github.com/keyforge/keyforge/internal/ledger/domain"
	"github.com/keyforge/keyforge/internal/license"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"github.com/keyforge/keyforge/internal/metrics"
	"github.com/keyforge/keyforge/internal/ratelimit"
	"github.com/keyforge/keyforge/internal/token"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(NewEngine),
	metrics.Module,
	ratelimit.Module,
	token.Module,
	license.Module,
	activation.Module,
	ledger.Module,
	coupon.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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
	engine        *gin.Engine
	cfg           config.Config
	licenseSvc    licensedomain.Service
	activationSvc activationdomain.Service
	ledgerSvc     ledgerdomain.Service
	couponSvc     coupondomain.Service
	redeemLimiter *ratelimit.RedeemLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	LicenseSvc    licensedomain.Service
	ActivationSvc activationdomain.Service
	LedgerSvc     ledgerdomain.Service
	CouponSvc     coupondomain.Service
	RedeemLimiter *ratelimit.RedeemLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		licenseSvc:    p.LicenseSvc,
		activationSvc: p.ActivationSvc,
		ledgerSvc:     p.LedgerSvc,
		couponSvc:     p.CouponSvc,
		redeemLimiter: p.RedeemLimiter,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	admin := v1.Group("", s.adminRequired())
	admin.POST("/licenses", s.IssueLicenses)
	admin.POST("/licenses/:id/revoke", s.RevokeLicense)
	admin.POST("/coupons", s.CreateCoupon)

	v1.GET("/projects/:project_id/revoked", s.ListRevokedIDs)
	v1.POST("/activations/start", s.StartActivation)
	v1.POST("/activations/finish", s.FinishActivation)
	v1.POST("/heartbeat", s.Heartbeat)
	v1.POST("/meter", s.MeterUsage)
	v1.POST("/coupons/redeem", s.RedeemCoupon)
}
