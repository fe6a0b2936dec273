package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"

	internalapi "github.com/13132klain/Cyber-Mtandao/internal/api"
	"github.com/13132klain/Cyber-Mtandao/internal/authz"
	appconfig "github.com/13132klain/Cyber-Mtandao/internal/config"
	"github.com/13132klain/Cyber-Mtandao/internal/events"
	"github.com/13132klain/Cyber-Mtandao/internal/mpesa"
	"github.com/13132klain/Cyber-Mtandao/internal/payment"
	"github.com/13132klain/Cyber-Mtandao/internal/secrets"
	postgres "github.com/13132klain/Cyber-Mtandao/internal/storage/postgres"
	"github.com/13132klain/Cyber-Mtandao/internal/telemetry"
)

func newLogger(cfg appconfig.Config) *log.Logger {
	prefix := ""
	if cfg.ServiceName != "" {
		prefix = fmt.Sprintf("[%s] ", cfg.ServiceName)
	}
	logger := log.New(os.Stdout, prefix, log.LstdFlags|log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	log.SetFlags(logger.Flags())
	log.SetPrefix(prefix)
	return logger
}

func setupTelemetry(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) {
	var cleanup func()
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			cleanup = telemetry.InitTracer(cfg.ServiceName)
			return nil
		},
		OnStop: func(context.Context) error {
			if cleanup != nil {
				cleanup()
			}
			return nil
		},
	})
}

// newSQLDB provides a shared *sql.DB via Fx and closes it on shutdown.
func newSQLDB(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger) (*sql.DB, error) {
	logger.Printf("Connecting to PostgreSQL database %s@%s:%d", cfg.Database.Database, cfg.Database.Host, cfg.Database.Port)
	db, err := postgres.OpenDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Printf("Database connection established successfully")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return postgres.CloseDatabase()
		},
	})
	return db, nil
}

// newKafkaProducer constructs a shared Kafka producer and binds its lifecycle to Fx.
func newKafkaProducer(cfg appconfig.Config, lc fx.Lifecycle) *events.Producer {
	prod := events.NewProducer(cfg.Kafka.Brokers)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return prod.Close()
		},
	})
	return prod
}

func newMpesaClient(cfg appconfig.Config) *mpesa.Client {
	return mpesa.NewClient(cfg.Mpesa)
}

func newInitiator(repo *postgres.Repository, client *mpesa.Client) *payment.Initiator {
	return payment.NewInitiator(repo, client)
}

func newProcessor(repo *postgres.Repository, prod *events.Producer) *payment.Processor {
	return payment.NewProcessor(repo, prod)
}

func registerWebServer(lc fx.Lifecycle, cfg appconfig.Config, logger *log.Logger, shutdowner fx.Shutdowner,
	repo *postgres.Repository, initiator *payment.Initiator, processor *payment.Processor, prod *events.Producer) {
	httpServer := newWebServer(cfg, repo, initiator, processor, prod)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				logger.Printf("API server listening on %s", cfg.HTTP.Addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Printf("API server error: %v", err)
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	})
}

func newWebServer(cfg appconfig.Config, repo *postgres.Repository, initiator *payment.Initiator,
	processor *payment.Processor, prod *events.Producer) *http.Server {
	mux := http.NewServeMux()

	az := authz.NewFromEnv()
	internalapi.RegisterPaymentRoutes(mux, repo, initiator, processor, cfg.Mpesa.CallbackToken)
	internalapi.RegisterOrdersRoutes(mux, repo, repo, prod, az)
	internalapi.RegisterServicesRoutes(mux, repo)

	mux.Handle("/healthz", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}), "healthz"))

	return &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: withCORS(mux),
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Simple permissive CORS for local testing
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	_ = godotenv.Load()
	if err := secrets.BootstrapFromOpenBao(context.Background()); err != nil {
		log.Fatalf("OpenBao bootstrap failed: %v", err)
	}

	app := fx.New(
		fx.Provide(
			appconfig.Load,
			newLogger,
			newKafkaProducer,
			newSQLDB,
			postgres.NewRepository,
			newMpesaClient,
			newInitiator,
			newProcessor,
		),
		fx.Invoke(
			func(logger *log.Logger, cfg appconfig.Config) {
				logger.Printf("Starting %s (M-Pesa env: %s, shortcode: %s)...", cfg.ServiceName, cfg.Mpesa.Environment, cfg.Mpesa.ShortCode)
			},
			setupTelemetry,
			registerWebServer,
		),
	)

	app.Run()
}
