package main

// GET    /api/health                     - Liveness check
// POST   /api/auth/register|login        - Accounts
// GET    /api/products[/{slug}]          - Catalog
// /api/cart, /api/wishlist               - Guest (X-Session-ID) or user cart and wishlist
// POST   /api/orders                     - Checkout
// POST   /api/payu/create/{orderId}      - Start a PayU payment
// POST   /api/payu/notify                - PayU webhook
// /api/admin/...                         - Products, orders, invoices, images

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"acro-shop/auth"
	"acro-shop/cloudinary"
	"acro-shop/config"
	"acro-shop/events"
	"acro-shop/fakturownia"
	"acro-shop/handler"
	"acro-shop/mailer"
	"acro-shop/payu"
	"acro-shop/ratelimit"
	"acro-shop/service"
	"acro-shop/store"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shop",
	Short: "Acro Clinic shop backend",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		zcfg := zap.NewProductionConfig()
		if cfg.IsDevelopment() {
			zcfg = zap.NewDevelopmentConfig()
		}
		if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
			zcfg.Level = zap.NewAtomicLevelAt(lvl)
		}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply all migrations, or roll back one step",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Database.URL == "" {
			return errors.New("database url is required (DATABASE_URL)")
		}
		version, err := store.Migrate(cfg.Database.URL, args[0] == "down")
		if err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("direction", args[0]), zap.Uint("version", version))
		return nil
	},
}

var payuStatusCmd = &cobra.Command{
	Use:   "payu-status [orderId]",
	Short: "Fetch the PayU status of an order and apply it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		a, err := build(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		st, err := a.svc.RefreshPaymentByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		a.svc.Wait()
		fmt.Printf("order %s: payu=%s payment=%s status=%s\n", args[0], st.Status, st.PaymentStatus, st.OrderStatus)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd, payuStatusCmd)
}

func main() {
	// Prices go out as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app is the wired backend.
type app struct {
	store     *store.PostgresStore
	svc       *service.Service
	publisher events.Publisher
}

func (a *app) close() {
	if err := a.publisher.Close(); err != nil {
		logger.Warn("event publisher close failed", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}

func build(ctx context.Context) (*app, error) {
	shipping, err := service.ParseShipping(cfg.Shipping)
	if err != nil {
		return nil, err
	}

	st, err := store.NewPostgresStore(ctx, cfg.Database.URL, store.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	timeout := cfg.GetOutboundTimeout()
	deps := service.Deps{
		Store:  st,
		Tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.GetTokenTTL(), cfg.Auth.Issuer),
		Log:    logger,
	}

	if cfg.IsPayUEnabled() {
		deps.Payments = payu.NewClient(payu.Config{
			BaseURL:      cfg.PayU.BaseURL,
			PosID:        cfg.PayU.PosID,
			ClientID:     cfg.PayU.ClientID,
			ClientSecret: cfg.PayU.ClientSecret,
			SecondKey:    cfg.PayU.SecondKey,
			Timeout:      timeout,
		}, logger)
	} else {
		logger.Warn("payu not configured, payments disabled")
	}

	if cfg.IsFakturowniaEnabled() {
		deps.Invoices = fakturownia.NewClient(fakturownia.Config{
			Domain:      cfg.Fakturownia.Domain,
			APIToken:    cfg.Fakturownia.APIToken,
			SellerName:  cfg.Fakturownia.SellerName,
			SellerTaxNo: cfg.Fakturownia.SellerTaxNo,
			TaxRate:     cfg.Fakturownia.TaxRate,
			Timeout:     timeout,
		}, logger)
	} else {
		logger.Warn("fakturownia not configured, invoicing disabled")
	}

	if cfg.IsCloudinaryEnabled() {
		deps.Images = cloudinary.NewClient(cloudinary.Config{
			CloudName: cfg.Cloudinary.CloudName,
			APIKey:    cfg.Cloudinary.APIKey,
			APISecret: cfg.Cloudinary.APISecret,
			Folder:    cfg.Cloudinary.Folder,
			Timeout:   timeout,
		}, logger)
	}

	if cfg.IsResendEnabled() {
		deps.Mail = mailer.NewResend(cfg.Resend.APIKey, cfg.Resend.From, timeout, logger)
	} else {
		deps.Mail = mailer.Nop{Log: logger}
		logger.Warn("resend not configured, emails are only logged")
	}

	deps.Events = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Queue, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
		deps.Events = pub
	}

	svc := service.NewService(deps, service.Options{
		Shipping:          shipping,
		PublicURL:         cfg.Server.PublicURL,
		FrontendURL:       cfg.Server.FrontendURL,
		ContactInbox:      cfg.Resend.ContactInbox,
		AutoInvoice:       cfg.Fakturownia.AutoInvoice,
		SendInvoice:       cfg.Fakturownia.SendEmail,
		BackgroundTimeout: timeout,
	})
	return &app{store: st, svc: svc, publisher: deps.Events}, nil
}

func newLimit(rule config.RateRule) *handler.Limit {
	return &handler.Limit{Limiter: ratelimit.New(rule.Requests, rule.GetWindow()), Message: rule.Message}
}

func serve(ctx context.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		version, err := store.Migrate(cfg.Database.URL, false)
		if err != nil {
			return fmt.Errorf("failed running migrations: %w", err)
		}
		logger.Info("database migrations applied", zap.Uint("version", version))
	}

	a, err := build(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts := handler.Options{
		Dev:            cfg.IsDevelopment(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustProxyHops: cfg.Server.TrustProxyHops,
	}
	if cfg.RateLimit.Enabled {
		opts.GlobalLimit = newLimit(cfg.RateLimit.Global)
		opts.AuthLimit = newLimit(cfg.RateLimit.Auth)
		opts.ContactLimit = newLimit(cfg.RateLimit.Contact)
		defer func() {
			for _, l := range []*handler.Limit{opts.GlobalLimit, opts.AuthLimit, opts.ContactLimit} {
				l.Close()
			}
		}()
	}

	h := handler.NewHandler(a.svc, logger, opts)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server running",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("origins", strings.Join(cfg.Server.AllowedOrigins, ",")))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		a.svc.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
