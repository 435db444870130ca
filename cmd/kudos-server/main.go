// Command kudos-server is the unified HTTP + scheduler process
// (spec.md §2): load configuration, connect to Postgres and Redis,
// wire every domain service, serve the REST API, and run the
// background job scheduler until a termination signal arrives.
// Grounded on the teacher's infrastructure/service.Run bootstrap
// sequence: config → dependencies → factory → HTTP listener →
// graceful shutdown on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kudos-hq/kudos-server/internal/cache"
	"github.com/kudos-hq/kudos-server/internal/config"
	"github.com/kudos-hq/kudos-server/internal/dictionary"
	"github.com/kudos-hq/kudos-server/internal/domain/authz"
	"github.com/kudos-hq/kudos-server/internal/domain/cron"
	"github.com/kudos-hq/kudos-server/internal/domain/gamification"
	"github.com/kudos-hq/kudos-server/internal/domain/group"
	"github.com/kudos-hq/kudos-server/internal/domain/identity"
	"github.com/kudos-hq/kudos-server/internal/domain/ledger"
	"github.com/kudos-hq/kudos-server/internal/domain/notification"
	"github.com/kudos-hq/kudos-server/internal/domain/report"
	"github.com/kudos-hq/kudos-server/internal/domain/task"
	"github.com/kudos-hq/kudos-server/internal/domain/team"
	"github.com/kudos-hq/kudos-server/internal/domain/token"
	"github.com/kudos-hq/kudos-server/internal/httpapi"
	"github.com/kudos-hq/kudos-server/internal/logging"
	"github.com/kudos-hq/kudos-server/internal/platform/database"
	"github.com/kudos-hq/kudos-server/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := database.Connect(database.Config{
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxConnections,
		MaxIdleConns: cfg.DBMaxConnections,
	})
	if err != nil {
		logger.WithError(err).Fatal("connect database")
	}
	if err := db.Migrate("migrations"); err != nil {
		logger.WithError(err).Warn("run migrations")
	}

	redisClient, err := cache.NewClient(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("connect redis")
	}
	blacklist := cache.NewBlacklist(redisClient)
	dictCache := cache.NewDictionary(redisClient)
	_ = dictCache // wired into domain services that need code->id lookups as they're built out

	tokenCfg := token.Config{
		Secret:           []byte(cfg.JWTSecretKey),
		Issuer:           cfg.JWTIssuer,
		Audience:         cfg.JWTAudience,
		AccessTokenTTL:   time.Duration(cfg.AccessTokenExpireMinutes) * time.Minute,
		RefreshTokenTTL:  time.Duration(cfg.RefreshTokenExpireDays) * 24 * time.Hour,
		EmailVerifyTTL:   time.Duration(cfg.EmailVerificationTokenExpireHours) * time.Hour,
		PasswordResetTTL: time.Duration(cfg.PasswordResetTokenExpireMinutes) * time.Minute,
	}
	signer := token.NewSigner(tokenCfg)

	identitySvc := identity.NewService(db)
	refreshTok := token.NewRefreshService(db, signer, tokenCfg, func(ctx context.Context, userID string) (string, bool, error) {
		u, err := identity.NewRepository(db).GetByID(ctx, userID)
		if err != nil {
			return "", false, err
		}
		return u.UserTypeCode, u.Active, nil
	})
	oneTimeTTL := tokenCfg.EmailVerifyTTL
	if tokenCfg.PasswordResetTTL > oneTimeTTL {
		oneTimeTTL = tokenCfg.PasswordResetTTL
	}
	oneTimeTok := token.NewOneTimeService(signer, tokenCfg,
		func(ctx context.Context, tok string) error { return blacklist.MarkUsed(ctx, tok, oneTimeTTL) },
		func(ctx context.Context, tok string) bool { return blacklist.IsUsed(ctx, tok) },
	)

	groupSvc := group.NewService(db)
	teamSvc := team.NewService(db)
	ledgerSvc := ledger.NewService(db)
	notifySvc := notification.NewService(db, []string{dictionary.ChannelInApp})
	taskSvc := task.NewService(db, ledgerSvc, notifySvc, group.NewRepository(db), teamSvc, groupSvc)
	gamifySvc := gamification.NewService(db)
	cronSvc := cron.NewService(db)
	authzResolver := authz.NewResolver(group.NewRepository(db), team.NewRepository(db))
	reportSvc := report.NewService(db, authzResolver)

	srv := httpapi.NewServer(httpapi.Deps{
		Log: logger, DB: db, Signer: signer, RefreshTok: refreshTok, OneTimeTok: oneTimeTok,
		Identity: identitySvc, Group: groupSvc, Team: teamSvc, Task: taskSvc, Ledger: ledgerSvc,
		Gamification: gamifySvc, Notification: notifySvc, Report: reportSvc, Authz: authzResolver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(scheduler.Deps{
		Log: logger, Cron: cronSvc, Group: groupSvc, Task: taskSvc, Report: reportSvc,
		Gamification: gamifySvc, Notification: notifySvc, Ledger: ledgerSvc, RefreshTok: refreshTok,
	}, cfg.SchedulerTickInterval, 50)
	go sched.Run(ctx)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           srv.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("kudos-server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	logger.Info("stopped")
}
