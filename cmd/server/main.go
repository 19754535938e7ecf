package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"ideaflow/internal/config"
	cronrunner "ideaflow/internal/cron"
	"ideaflow/internal/db"
	"ideaflow/internal/events"
	"ideaflow/internal/feedback"
	"ideaflow/internal/handler"
	"ideaflow/internal/lifecycle"
	"ideaflow/internal/logger"
	"ideaflow/internal/models"
	"ideaflow/internal/notify"
	"ideaflow/internal/proposal"
	"ideaflow/internal/provider"
	gormrepository "ideaflow/internal/repository/gorm"
	"ideaflow/internal/scheduler"
	"ideaflow/internal/validation"
)

//go:generate swag init -g cmd/server/main.go -o docs

const (
	agentGenerator = "idea_generator"
	agentValidator = "validation_agent"
	agentPortfolio = "portfolio_manager"
)

// @title Ideaflow API
// @version 1.0
// @description Investment idea pipeline: generation, validation, execution, monitoring.
// @BasePath /
func main() {
	cfgPath := os.Getenv("IDEA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("IDEA_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	hub := events.NewHub(logger)

	var prices provider.MarketData
	switch strings.ToLower(cfg.MarketData.Provider) {
	case "static":
		prices = provider.NewStaticMarketData(nil)
	default:
		prices = &provider.YahooMarketData{Logger: logger}
	}

	machine := &lifecycle.Machine{
		Repo:   store,
		Logger: logger,
		Events: hub,
		Prices: prices,
	}

	lenses := []validation.Lens{
		&validation.BacktestLens{},
		&validation.FundamentalLens{Prices: prices},
		&validation.ReasoningLens{},
		&validation.DataAnalysisLens{},
	}
	if cfg.Generator.LensEndpoint != "" {
		lenses = append(lenses, provider.NewRemoteLens(cfg.Generator.LensEndpoint, "external", cfg.Generator.Timeout))
	}
	pipeline := validation.NewPipeline(cfg.Validation, logger, lenses...)
	validator := &validation.Service{Machine: machine, Pipeline: pipeline, Logger: logger}

	aggregator := &feedback.Aggregator{Repo: store, Logger: logger, Cfg: cfg.Credibility}

	engineSvc := &proposal.Engine{
		Repo:            store,
		Prices:          prices,
		Costs:           proposal.NewCostModel(cfg.Costs, cfg.Costs.RiskAppetite),
		Logger:          logger,
		ScaleDownPolicy: cfg.Proposal.ScaleDownPolicy,
	}
	monitor := &proposal.Monitor{Repo: store, Prices: prices, Events: hub, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := scheduler.NewRegistry(store, logger, hub)
	registry.Register(ctx, agentGenerator, "Idea Generator")
	registry.Register(ctx, agentValidator, "Validation Agent")
	registry.Register(ctx, agentPortfolio, "Portfolio Manager")

	var generator provider.IdeaGenerator
	if cfg.Generator.Endpoint != "" {
		generator = provider.NewHTTPIdeaGenerator(cfg.Generator.Endpoint, agentGenerator, cfg.Generator.Timeout, logger)
	} else {
		generator = &provider.StubIdeaGenerator{AgentName: agentGenerator}
	}

	loops := scheduler.New(ctx, store, registry, logger, hub)
	loops.AddLoop(ctx, models.LoopIdea, []string{agentGenerator, agentValidator}, "generating and validating ideas",
		func(ctx context.Context, domains []string) error {
			ideas, err := generator.GenerateIdeas(ctx, domains)
			if err != nil {
				return err
			}
			for i := range ideas {
				if err := store.InsertIdea(ctx, &ideas[i]); err != nil {
					return err
				}
				if _, err := validator.ValidateIdea(ctx, ideas[i].ID); err != nil {
					logger.Warn("generated idea validation failed",
						zap.String("idea_id", ideas[i].ID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
	loops.AddLoop(ctx, models.LoopPortfolio, []string{agentPortfolio}, "assessing portfolios",
		monitor.Assess)

	if cfg.Loops.Idea.Enabled {
		if err := loops.Start(ctx, models.LoopIdea, cfg.Loops.Idea.Interval, cfg.Loops.Idea.Domains); err != nil {
			logger.Warn("idea loop start failed", zap.Error(err))
		}
	}
	if cfg.Loops.Portfolio.Enabled {
		if err := loops.Start(ctx, models.LoopPortfolio, cfg.Loops.Portfolio.Interval, cfg.Loops.Portfolio.Domains); err != nil {
			logger.Warn("portfolio loop start failed", zap.Error(err))
		}
	}

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	ideaHandler := &handler.IdeaHandler{
		Repo:      store,
		Machine:   machine,
		Validator: validator,
		Feedback:  aggregator,
	}
	ideaHandler.Register(engine)
	loopHandler := &handler.LoopHandler{
		Scheduler: loops,
		Registry:  registry,
		Stages: []scheduler.Stage{
			{Name: "Generate", Agents: []string{agentGenerator}},
			{Name: "Validate", Agents: []string{agentValidator}},
			{Name: "Monitor", Agents: []string{agentPortfolio}},
		},
		Precedence: cfg.Stage.Precedence,
	}
	loopHandler.Register(engine)
	portfolioHandler := &handler.PortfolioHandler{Repo: store, Engine: engineSvc}
	portfolioHandler.Register(engine)
	credibilityHandler := &handler.CredibilityHandler{Repo: store, Aggregator: aggregator}
	credibilityHandler.Register(engine)
	eventsHandler := &handler.EventsHandler{Hub: hub, Logger: logger}
	eventsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	marks := &lifecycle.MarkToMarket{Repo: store, Prices: prices, Logger: logger}
	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add(cfg.Cron.CredibilityRecompute, func(ctx context.Context) {
			if err := aggregator.RecomputeCredibility(ctx); err != nil {
				logger.Warn("cron credibility recompute failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register credibility recompute failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.MarkToMarket, func(ctx context.Context) {
			if err := marks.Refresh(ctx); err != nil {
				logger.Warn("cron mark-to-market failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register mark-to-market failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.RetrySweep, func(ctx context.Context) {
			if err := validator.SweepRetries(ctx, 20); err != nil {
				logger.Warn("cron retry sweep failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register retry sweep failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.Kafka.Enabled {
		notifier, err := notify.NewKafkaNotifier(cfg.Kafka, logger)
		if err != nil {
			logger.Warn("kafka notifier disabled", zap.Error(err))
		} else {
			defer notifier.Close()
			go notifier.Run(ctx, hub)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
