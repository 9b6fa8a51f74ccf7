// Command server runs the CommonSource certifier: certificate issuance,
// verification, revocation, and DID resolution over HTTP, backed by the
// issuer's wallet and a certificate store.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"commonsource/internal/audit"
	"commonsource/internal/certificate"
	"commonsource/internal/certstore"
	"commonsource/internal/did"
	"commonsource/internal/issuer"
	"commonsource/internal/jwtauth"
	"commonsource/internal/platform/config"
	"commonsource/internal/platform/httpserver"
	"commonsource/internal/platform/logger"
	"commonsource/internal/platform/metrics"
	redisplatform "commonsource/internal/platform/redis"
	"commonsource/internal/protocol"
	"commonsource/internal/revocation"
	httptransport "commonsource/internal/transport/http"
	"commonsource/internal/walletclient"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IssuerPrivateKeyHex == "" {
		return errors.New("COMMONSOURCE_ISSUER_KEY is required")
	}
	issuerKey, err := ec.PrivateKeyFromHex(cfg.IssuerPrivateKeyHex)
	if err != nil {
		return errors.New("COMMONSOURCE_ISSUER_KEY is not a valid private key")
	}

	m := metrics.New()

	toolbox, err := walletclient.NewToolboxWallet(ctx, walletclient.ToolboxConfig{
		PrivateKeyHex: cfg.IssuerPrivateKeyHex,
		Network:       cfg.WalletNetwork,
		DBPath:        cfg.WalletDBPath,
	}, log)
	if err != nil {
		return err
	}
	defer toolbox.Close()

	client := walletclient.New(toolbox, walletclient.RetryPolicy{
		MaxAttempts: cfg.WalletRetry.MaxAttempts,
		Backoff:     cfg.WalletRetry.Backoff,
	}, log, m)
	tokens := revocation.NewManager(client, log)

	var guard protocol.ReplayGuard
	redisClient, err := redisplatform.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		guard = protocol.NewRedisReplayGuard(redisClient.Client, cfg.NonceTTL)
		log.Info("replay guard backed by redis")
	} else {
		guard = protocol.NewMemoryReplayGuard(cfg.NonceTTL)
		log.Warn("replay guard is in-memory; nonce replay is not detected across replicas")
	}

	var store certstore.Store
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		pgStore := certstore.NewPostgres(db)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pgStore
		log.Info("certificate store backed by postgres")
	} else {
		store = certstore.NewMemory()
		log.Warn("certificate store is in-memory; certificates do not survive restarts")
	}

	resolver := did.NewResolver(store)
	verifier := certificate.NewVerifier(issuerKey.PubKey(), tokens, resolver, log)

	var sink audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit events published to kafka", "topic", cfg.Kafka.Topic)
	} else {
		sink = audit.NewMemorySink()
		log.Warn("audit events are in-memory only")
	}
	recorder := audit.NewRecorder(sink, cfg.AuditBuffer, log)

	svc := issuer.New(issuer.Config{
		Wallet:       client,
		Tokens:       tokens,
		Store:        store,
		ReplayGuard:  guard,
		Schemas:      certificate.NewSchemaRegistry(cfg.CertificateTypeB64, cfg.DIDTypeB64),
		Verifier:     verifier,
		Recorder:     recorder,
		Metrics:      m,
		Logger:       log,
		CertifierKey: issuerKey.PubKey(),
		IdentityType: cfg.CertificateTypeB64,
		DIDType:      cfg.DIDTypeB64,
	})

	router := httptransport.NewRouter(httptransport.Config{
		Issuer:    svc,
		Resolver:  resolver,
		Validator: jwtauth.NewService(cfg.AdminJWTSecret, cfg.AdminJWTIssuer),
		Metrics:   m,
		Logger:    log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := recorder.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("certifier listening",
			"addr", cfg.Addr,
			"identity_key", issuerKey.PubKey().ToDERHex(),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
