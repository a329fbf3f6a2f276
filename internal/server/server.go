package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/meridian/internal/bulkcredit"
	bulkcreditdomain "github.com/smallbiznis/meridian/internal/bulkcredit/domain"
	"github.com/smallbiznis/meridian/internal/checkout"
	checkoutservice "github.com/smallbiznis/meridian/internal/checkout/service"
	"github.com/smallbiznis/meridian/internal/clock"
	"github.com/smallbiznis/meridian/internal/config"
	"github.com/smallbiznis/meridian/internal/ledger"
	ledgerdomain "github.com/smallbiznis/meridian/internal/ledger/domain"
	"github.com/smallbiznis/meridian/internal/member"
	memberdomain "github.com/smallbiznis/meridian/internal/member/domain"
	"github.com/smallbiznis/meridian/internal/migration"
	"github.com/smallbiznis/meridian/internal/observability"
	obsmiddleware "github.com/smallbiznis/meridian/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meridian/internal/observability/metrics"
	obstracing "github.com/smallbiznis/meridian/internal/observability/tracing"
	"github.com/smallbiznis/meridian/internal/promotion"
	promotiondomain "github.com/smallbiznis/meridian/internal/promotion/domain"
	"github.com/smallbiznis/meridian/internal/ratelimit"
	"github.com/smallbiznis/meridian/internal/reference"
	referencedomain "github.com/smallbiznis/meridian/internal/reference/domain"
	"github.com/smallbiznis/meridian/internal/tradein"
	tradeindomain "github.com/smallbiznis/meridian/internal/tradein/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	fx.Provide(registerGin),
	migration.Module,
	ratelimit.Module,
	reference.Module,
	member.Module,
	ledger.Module,
	promotion.Module,
	tradein.Module,
	checkout.Module,
	bulkcredit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	db            *gorm.DB
	genID         *snowflake.Node
	referenceSvc  referencedomain.Service
	memberSvc     memberdomain.Service
	ledgerSvc     ledgerdomain.Service
	tradeInSvc    tradeindomain.Service
	promotionSvc  promotiondomain.Service
	checkoutSvc   *checkoutservice.Service
	bulkCreditSvc bulkcreditdomain.Service
	limiter       *ratelimit.Limiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	ReferenceSvc  referencedomain.Service
	MemberSvc     memberdomain.Service
	LedgerSvc     ledgerdomain.Service
	TradeInSvc    tradeindomain.Service
	PromotionSvc  promotiondomain.Service
	CheckoutSvc   *checkoutservice.Service
	BulkCreditSvc bulkcreditdomain.Service
	Limiter       *ratelimit.Limiter       `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics      `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		referenceSvc:  p.ReferenceSvc,
		memberSvc:     p.MemberSvc,
		ledgerSvc:     p.LedgerSvc,
		tradeInSvc:    p.TradeInSvc,
		promotionSvc:  p.PromotionSvc,
		checkoutSvc:   p.CheckoutSvc,
		bulkCreditSvc: p.BulkCreditSvc,
		limiter:       p.Limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Members --------
	api.GET("/members", s.ListMembers)
	api.POST("/members", s.CreateMember)
	api.GET("/members/:id", s.GetMemberByID)

	// -------- Reference Data --------
	api.GET("/tiers", s.ListTiers)
	api.POST("/tiers", s.CreateTier)
	api.PATCH("/tiers/:id", s.UpdateTier)
	api.GET("/categories", s.ListCategories)
	api.POST("/categories", s.CreateCategory)
	api.GET("/conditions", s.ListConditions)
	api.PUT("/conditions", s.UpsertCondition)
	api.GET("/bulk-bonus-tiers", s.ListBulkBonusTiers)
	api.POST("/bulk-bonus-tiers", s.CreateBulkBonusTier)

	// -------- Trade-Ins --------
	api.GET("/tradeins", s.ListTradeIns)
	api.POST("/tradeins", s.CreateTradeIn)
	api.GET("/tradeins/:id", s.GetTradeInByID)
	api.POST("/tradeins/:id/items", s.AddTradeInItem)
	api.PUT("/tradeins/:id/items/:itemId", s.UpdateTradeInItem)
	api.DELETE("/tradeins/:id/items/:itemId", s.RemoveTradeInItem)
	api.POST("/tradeins/:id/submit", s.SubmitTradeIn)
	api.POST("/tradeins/:id/approve", s.ApproveTradeIn)
	api.POST("/tradeins/:id/reject", s.RejectTradeIn)
	api.POST("/tradeins/:id/cancel", s.CancelTradeIn)
	api.POST("/tradeins/:id/complete", s.CompleteTradeIn)
	api.POST("/tradeins/:id/adjust", s.AdjustTradeIn)
	api.POST("/tradeins/calculate-payout", s.CalculateTradeInPayout)

	// -------- Promotions --------
	api.GET("/promotions", s.ListPromotions)
	api.GET("/promotions/templates", s.ListPromotionTemplates)
	api.POST("/promotions", s.CreatePromotion)
	api.GET("/promotions/:id", s.GetPromotionByID)
	api.PUT("/promotions/:id", s.UpdatePromotion)
	api.DELETE("/promotions/:id", s.DeletePromotion)

	// -------- Store Credit --------
	api.GET("/credit/:memberId/balance", s.GetCreditBalance)
	api.GET("/credit/:memberId/entries", s.ListCreditEntries)
	api.POST("/credit/:memberId/add", s.AddCredit)
	api.POST("/credit/:memberId/deduct", s.DeductCredit)
	api.POST("/credit/:memberId/reconcile", s.ReconcileCredit)

	// -------- Bulk Credit --------
	api.GET("/bulk-credit", s.ListBulkCreditOperations)
	api.POST("/bulk-credit", s.CreateBulkCreditOperation)
	api.GET("/bulk-credit/:id", s.GetBulkCreditOperationByID)
	api.GET("/bulk-credit/:id/preview", s.PreviewBulkCreditOperation)
	api.POST("/bulk-credit/:id/execute", s.ExecuteBulkCreditOperation)
	api.POST("/bulk-credit/:id/retry", s.RetryBulkCreditOperation)

	// -------- Checkout --------
	api.POST("/checkout/discount", s.CheckoutRateLimit(), s.CheckoutDiscount)
}
