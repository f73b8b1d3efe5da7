package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/BarberFox/app/controllers"
	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/billing"
	"github.com/ManuelReschke/BarberFox/internal/pkg/cache"
	"github.com/ManuelReschke/BarberFox/internal/pkg/database"
	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
	"github.com/ManuelReschke/BarberFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BarberFox/internal/pkg/mail"
	"github.com/ManuelReschke/BarberFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
	"github.com/ManuelReschke/BarberFox/internal/pkg/proofstore"
	"github.com/ManuelReschke/BarberFox/internal/pkg/router"
)

const bodyLimit = 8 << 20

func main() {
	app, manager := NewApplication()
	manager.Start()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	cfg := billing.LoadConfig()
	rdb := cache.GetClient()

	client := paypal.NewClientFromEnv()
	if cfg.TokenCacheEnabled {
		client.TokenCache = cache.NewTokenCache(rdb)
	}
	if !client.Configured() {
		fiberlog.Warn("[PayPal] PAYPAL_CLIENT_ID/PAYPAL_CLIENT_SECRET not set, PayPal rails are disabled")
	}

	manager := jobqueue.GetManager()
	queue := manager.GetQueue()
	counters := counter.NewBillingCounters(rdb)
	adminEmail := adminRecipient(cfg.AdminEmail)

	svc := billing.NewService(billing.NewStore(database.GetDB()), client, cfg,
		billing.WithPlanSyncScheduler(queue),
		billing.WithCounters(counters),
		billing.WithAdminNotifier(jobqueue.NewAdminNotifier(queue, adminEmail)),
	)

	var sender jobqueue.MailSender
	if mailer := mail.NewSMTPMailerFromEnv(); mailer.Host != "" {
		sender = mailer
	}
	jobqueue.RegisterBillingHandlers(queue, svc, sender, adminEmail, cfg.PublicDomain+"/admin/billing/manual-reports")

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	gatewayToken := env.GetEnv("GATEWAY_TOKEN", "")
	trustHeaders := env.GetEnvBool("GATEWAY_TOKEN_DISABLED", false)
	if trustHeaders {
		fiberlog.Warn("[Router] GATEWAY_TOKEN_DISABLED is set, identity headers are trusted from any client")
	} else if gatewayToken == "" {
		fiberlog.Error("[Router] GATEWAY_TOKEN is not set, all identified routes will answer 401")
	}

	// ROUTER
	router.InstallRouter(app, router.Config{
		Billing:              controllers.NewBillingController(svc, proofUploader(), counters, queue),
		GatewayToken:         gatewayToken,
		TrustIdentityHeaders: trustHeaders,
		LimiterStorage:       cache.NewLimiterStorage(),
	})

	return app, manager
}

// proofUploader returns nil when S3 proof uploads are off or misconfigured.
func proofUploader() controllers.ProofUploader {
	proofCfg, err := proofstore.LoadConfig()
	if err != nil {
		fiberlog.Errorf("[ProofStore] Invalid configuration: %v", err)
		return nil
	}
	if !proofCfg.IsEnabled() {
		return nil
	}
	client, err := proofstore.NewClient(proofCfg)
	if err != nil {
		fiberlog.Errorf("[ProofStore] Could not create S3 client: %v", err)
		return nil
	}
	return client
}

// adminRecipient falls back to the first admin account when
// BILLING_ADMIN_EMAIL is unset.
func adminRecipient(configured string) string {
	if configured != "" {
		return configured
	}
	admins, err := repository.GetGlobalFactory().GetUserRepository().ListByRole(models.ROLE_ADMIN)
	if err != nil {
		fiberlog.Warnf("[Mail] Could not look up admin accounts: %v", err)
		return ""
	}
	for _, admin := range admins {
		if admin.Email != "" {
			return admin.Email
		}
	}
	return ""
}
