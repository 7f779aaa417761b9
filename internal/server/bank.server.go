package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/King-Austin/securecipher-bankingapi/internal/config"
	rh "github.com/King-Austin/securecipher-bankingapi/internal/handler/rest"
	publisher "github.com/King-Austin/securecipher-bankingapi/internal/pub"
	"github.com/King-Austin/securecipher-bankingapi/internal/repository"
	"github.com/King-Austin/securecipher-bankingapi/internal/router"
	"github.com/King-Austin/securecipher-bankingapi/internal/usecase"
	utils "github.com/King-Austin/securecipher-bankingapi/pkg/utils"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/middleware"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/pkg/jwtutil"
	"github.com/King-Austin/securecipher-bankingapi/shared/auth/signature"
	"github.com/King-Austin/securecipher-bankingapi/shared/utils/cache"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Server owns the HTTP and gRPC listeners and the connections behind them.
type Server struct {
	HTTP   *http.Server
	GRPC   *GRPCServer
	Logger *zap.Logger

	db        *pgxpool.Pool
	rdb       *redis.Client
	kafka     *kafka.Writer
	transfers *usecase.TransferUsecase
}

func NewServer(cfg config.AppConfig) (*Server, error) {
	// --- Init Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// --- Connect Postgres ---
	db, err := config.ConnectDB(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect DB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Server{Logger: logger, db: db}

	// --- Init Redis (optional) ---
	var rdb redis.UniversalClient
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			s.Close()
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
		s.rdb = client
		rdb = client
	} else {
		logger.Warn("REDIS_ADDR not set: caching, rate limiting and replay protection disabled")
	}
	sharedCache := cache.FromClient(rdb)

	// --- Init Kafka (optional) ---
	var writer publisher.MessageWriter
	if w := publisher.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic); w != nil {
		s.kafka = w
		writer = w
		logger.Info("kafka writer ready", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	events := publisher.NewTransferEventPublisher(rdb, writer, logger)

	// --- Init Repositories ---
	accountRepo := repository.NewAccountRepo(db, logger)
	transactionRepo := repository.NewTransactionRepo(db)
	ledgerRepo := repository.NewLedgerRepo(db, logger)

	// --- Init Usecases ---
	resolver := usecase.NewResolutionUsecase(accountRepo, cfg.BankName)
	transferUC := usecase.NewTransferUsecase(
		accountRepo, ledgerRepo, resolver, utils.NewReferenceGenerator(), events, logger,
		usecase.TransferConfig{Currency: cfg.DefaultCurrency, MaxAttempts: cfg.TransferMaxAttempts},
	)
	accountUC := usecase.NewAccountUsecase(accountRepo, transactionRepo, resolver, sharedCache, logger)

	// --- Init Middleware ---
	auth, err := middleware.RequireAuth(jwtutil.JWTConfig{
		PubPath:  cfg.JWTPublicKeyPath,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		KeyPaths: cfg.JWTRotatedKeys,
	}, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	verifier := signature.NewVerifier(cfg.SignedPathPrefixes, signature.WithMaxSkew(cfg.SignatureMaxSkew))
	sig := middleware.NewSignatureMiddleware(verifier, accountUC, sharedCache, middleware.NewAuditLogger(os.Stdout), logger)

	// --- Init Handlers ---
	handler := rh.NewBankRestHandler(transferUC, accountUC, logger)

	// --- Router ---
	r := chi.NewRouter()
	router.SetupRoutes(r, handler, auth, sig, rdb, router.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:      cfg.RateLimit,
	})

	s.HTTP = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.GRPC = NewGRPCServer(cfg.GRPCAddr, db, logger)
	s.transfers = transferUC
	return s, nil
}

// Close releases the pools and writers. Call it after the listeners stop.
func (s *Server) Close() {
	if s.transfers != nil {
		s.transfers.Wait()
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.Logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if s.db != nil {
		s.db.Close()
	}
	_ = s.Logger.Sync()
}
