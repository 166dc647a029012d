package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-rel/rel"
	"github.com/go-rel/rel/migrator"
	"github.com/penglongli/gin-metrics/ginmetrics"
	"github.com/procyon-projects/chrono"

	"github.com/agentauth/consent-pdp/capability"
	"github.com/agentauth/consent-pdp/config"
	"github.com/agentauth/consent-pdp/consent"
	"github.com/agentauth/consent-pdp/db/migrations"
	"github.com/agentauth/consent-pdp/decision"
	pdpHttp "github.com/agentauth/consent-pdp/http"
	"github.com/agentauth/consent-pdp/logging"
	"github.com/agentauth/consent-pdp/rules"
	dbSql "github.com/agentauth/consent-pdp/sql"
	"github.com/agentauth/consent-pdp/webhook"
)

/**
* Global logger
 */
var logger = logging.Log()

/**
* Port to run the pdp at. Default is 8080.
 */
var serverPort int = 8080

/**
* The decision pipeline behind the authorization endpoints.
 */
var decider *decision.Decider

/**
* Service handling the consent lifecycle.
 */
var consentService *consent.Service

/**
* Codec minting and attenuating delegation tokens.
 */
var tokenCodec *capability.Codec

/**
* Repository holding spending limits and policy rules.
 */
var ruleRepo rules.Repository

/**
* Tracker exposing the current spend counters.
 */
var usageTracker *rules.UsageTracker

var authQueue *decision.WriteBehindQueue

/**
* Startup method to wire the pipeline and run the gin-server.
 */
func main() {

	appConfig := config.EnvConfig{}
	clock := capability.RealClock{}

	tokenCodec = capability.NewCodec(appConfig.TokenSecret(), clock)
	verifier := capability.NewVerifier(tokenCodec)

	var consentRepo consent.Repository
	var authStore decision.AuthorizationStore

	dbEnabled, _ := strconv.ParseBool(os.Getenv("DB_ENABLED"))
	if dbEnabled {
		relRepo := dbSql.GetMySqlRepository()
		migrate(relRepo)
		consentRepo = consent.NewSqlRepository(relRepo)
		ruleRepo = rules.NewSqlRepository(relRepo)
		authStore = decision.NewSqlStore(relRepo)
		pdpHttp.RegisterStoreCheck("mysql", relRepo.Ping)
	} else {
		logger.Warn("Consents, limits and authorizations are kept in-memory. No persistence will be applied, do NEVER use this for anything but development or testing!")
		consentRepo = consent.NewInMemoryRepo()
		ruleRepo = rules.NewInMemoryRepo()
		authStore = decision.NewInMemoryStore()
	}

	consentCache := consent.NewCache(consentRepo, appConfig.ConsentCacheTTL(), appConfig.ConsentCacheCapacity(), appConfig.ConsentStoreTimeout(), clock)
	consentService = consent.NewService(consentRepo, consentCache, tokenCodec, clock, appConfig.TokenExpiry())

	usageTracker = rules.NewUsageTracker()
	engine := rules.NewEngine(ruleRepo, usageTracker)

	authCache := decision.NewAuthorizationCache()
	authQueue = decision.NewWriteBehindQueue(authStore, appConfig.AuthQueueCapacity(), appConfig.AuthFlushBatchSize())
	if err := authQueue.Start(appConfig.AuthFlushInterval()); err != nil {
		logger.Fatalf("Was not able to start the authorization queue. Err: %v", err)
	}

	decider = decision.NewDecider(verifier, consentCache, engine, authCache, authQueue, eventEmitter(), clock, appConfig.AuthCodeExpiry())

	purgeScheduler := chrono.NewDefaultTaskScheduler()
	if _, err := purgeScheduler.ScheduleAtFixedRate(func(ctx context.Context) {
		authCache.PurgeExpired(clock.Now())
	}, time.Minute); err != nil {
		logger.Fatalf("Was not able to schedule the authorization purge. Err: %v", err)
	}

	router := gin.New()
	router.Use(logging.GinHandlerFunc(), gin.Recovery())

	metrics := ginmetrics.GetMonitor()
	metrics.SetMetricPath("/metrics")
	metrics.Use(router)

	// decisions
	router.POST("/authorize", authorize)
	router.POST("/authorizations/verify", verifyAuthorization)

	// delegation
	router.POST("/tokens/attenuate", attenuateToken)

	// consent lifecycle
	router.POST("/consents", createConsent)
	router.GET("/consents/:id", getConsentById)
	router.POST("/consents/:id/revoke", revokeConsentById)

	// limits and policy rules
	router.GET("/users/:userId/limits", getSpendingLimit)
	router.PUT("/users/:userId/limits", putSpendingLimit)
	router.GET("/users/:userId/usage", getUsage)
	router.POST("/users/:userId/rules/merchants", createMerchantRule)
	router.GET("/users/:userId/rules/merchants", getMerchantRules)
	router.POST("/users/:userId/rules/categories", createCategoryRule)
	router.GET("/users/:userId/rules/categories", getCategoryRules)

	router.GET("/health", pdpHttp.HealthReq)

	server := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%v", serverPort), Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Was not able to run the server. Err: %v", err)
		}
	}()
	logger.Infof("Started router at %v", serverPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	server.Shutdown(shutdownCtx)
	<-purgeScheduler.Shutdown()

	// everything still queued has to reach the audit store
	authQueue.Shutdown(time.Second * 10)
	logger.Info("Shutdown complete.")
}

func migrate(relRepo rel.Repository) {
	m := migrator.New(relRepo)
	m.Register(1, migrations.MigrateCreateConsents, migrations.RollbackCreateConsents)
	m.Register(2, migrations.MigrateCreateAuthorizations, migrations.RollbackCreateAuthorizations)
	m.Register(3, migrations.MigrateCreateSpendingLimits, migrations.RollbackCreateSpendingLimits)
	m.Register(4, migrations.MigrateCreateMerchantRules, migrations.RollbackCreateMerchantRules)
	m.Register(5, migrations.MigrateCreateCategoryRules, migrations.RollbackCreateCategoryRules)
	m.Migrate(context.Background())
}

func eventEmitter() webhook.Emitter {
	webhookUrl := os.Getenv("WEBHOOK_URL")
	if webhookUrl == "" {
		logger.Info("No webhook endpoint configured, events are only logged.")
		return webhook.NewLogEmitter()
	}
	return webhook.NewHttpEmitter(webhookUrl, os.Getenv("WEBHOOK_SECRET"))
}

func init() {

	serverPortEnvVar := os.Getenv("SERVER_PORT")
	if serverPortEnvVar == "" {
		return
	}

	port, err := strconv.Atoi(serverPortEnvVar)
	if err != nil {
		logger.Fatalf("No valid server port was provided: %s.", serverPortEnvVar)
	}
	serverPort = port
}
