package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-dispatch/internal/config"
	"delivery-dispatch/internal/database"
	"delivery-dispatch/internal/modules/auth"
	"delivery-dispatch/internal/modules/dispatch"
	"delivery-dispatch/internal/modules/drivers"
	"delivery-dispatch/internal/modules/notifications"
	"delivery-dispatch/internal/modules/orders"
	"delivery-dispatch/internal/modules/tracking"
	"delivery-dispatch/pkg/payment"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	// Live feed.
	hub := tracking.NewHub(cfg.FeedBufferSize, log)
	trackingSvc := tracking.NewService(tracking.NewRepository(pool), hub, log)

	// Notification fanout. SES is attached only when configured; the log
	// channel is always on.
	senders := []notifications.Sender{&notifications.LogSender{Log: log}}
	if cfg.SESSenderAddress != "" {
		sesSender, err := notifications.NewSESEmailSender(ctx, cfg.AWSRegion, cfg.SESSenderAddress,
			notifications.RelayRecipients{
				Customer:   "customers@" + mailDomain(cfg.SESSenderAddress),
				Restaurant: "restaurants@" + mailDomain(cfg.SESSenderAddress),
				Driver:     "drivers@" + mailDomain(cfg.SESSenderAddress),
			})
		if err != nil {
			log.WithError(err).Fatal("failed to configure SES sender")
		}
		senders = append(senders, sesSender)
	}
	notifier := notifications.NewService(senders, cfg.NotifyMaxAttempts, log)
	notifier.Start(2)
	defer notifier.Stop()

	var payments orders.PaymentServiceInterface
	if cfg.StripeAPIKey != "" {
		payments = payment.NewStripeService(cfg.StripeAPIKey)
	}

	// Modules.
	orderSvc := orders.NewService(orders.NewRepository(pool), notifier, trackingSvc, payments, log)
	orderHandler := orders.NewHandler(orderSvc)

	dispatchSvc := dispatch.NewService(dispatch.NewRepository(pool), orderSvc, notifier, trackingSvc, log)
	dispatchHandler := dispatch.NewHandler(dispatchSvc)

	region := drivers.Region{
		MinLat: cfg.RegionMinLat, MaxLat: cfg.RegionMaxLat,
		MinLng: cfg.RegionMinLng, MaxLng: cfg.RegionMaxLng,
	}
	driverSvc := drivers.NewService(drivers.NewRepository(pool), region, trackingSvc, log)
	driverHandler := drivers.NewHandler(driverSvc)

	trackingHandler := tracking.NewHandler(trackingSvc)
	authHandler := auth.NewHandler(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPasswordHash)

	// Routes.
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
	e.POST("/auth/login", authHandler.Login)

	api := e.Group("", auth.Middleware(cfg.JWTSecret))

	api.POST("/orders", orderHandler.CreateOrder)
	api.GET("/orders", orderHandler.ListOrders)
	api.GET("/orders/:orderId", orderHandler.GetOrder)
	api.GET("/orders/:orderId/history", orderHandler.GetOrderHistory)
	api.POST("/orders/:orderId/transition", orderHandler.TransitionOrder)
	api.POST("/orders/:orderId/assign", dispatchHandler.AssignDriver)

	api.POST("/drivers", driverHandler.RegisterDriver)
	api.GET("/drivers", driverHandler.ListDrivers)
	api.GET("/drivers/:driverId", driverHandler.GetDriver)
	api.PATCH("/drivers/:driverId/availability", driverHandler.SetAvailability)
	api.PATCH("/drivers/:driverId/verification", driverHandler.SetVerification)
	api.POST("/drivers/:driverId/hold", driverHandler.PlaceHold)
	api.DELETE("/drivers/:driverId/hold", driverHandler.LiftHold)
	api.POST("/drivers/:driverId/position", driverHandler.ReportPosition)

	api.GET("/deliveries/live", trackingHandler.StreamDeliveries)

	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil {
			log.WithError(err).Info("server stopped")
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// mailDomain extracts the domain part of the configured sender address.
func mailDomain(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == '@' {
			return addr[i+1:]
		}
	}
	return addr
}

// compile-time checks that the module services satisfy their cross-module
// contracts.
var (
	_ orders.NotifierInterface   = (*notifications.Service)(nil)
	_ orders.FeedInterface       = (*tracking.Service)(nil)
	_ dispatch.NotifierInterface = (*notifications.Service)(nil)
	_ dispatch.FeedInterface     = (*tracking.Service)(nil)
	_ drivers.FeedInterface      = (*tracking.Service)(nil)
)
