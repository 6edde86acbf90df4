package server

import (
	"context"
	"log/slog"
	stdhttp "net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/soma-edu/soma/internal/api/http"
	"github.com/soma-edu/soma/internal/archive"
	"github.com/soma-edu/soma/internal/cache"
	"github.com/soma-edu/soma/internal/feedback"
	"github.com/soma-edu/soma/internal/rag"
	"github.com/soma-edu/soma/internal/session"
	"github.com/soma-edu/soma/internal/telemetry"
	genkitpkg "github.com/soma-edu/soma/pkg/genkit"
	"github.com/soma-edu/soma/pkg/log"
	"github.com/soma-edu/soma/pkg/mq"
	redispkg "github.com/soma-edu/soma/pkg/redis"
	"github.com/soma-edu/soma/pkg/vector"
)

// Server wires the answer pipeline and its backing stores. All
// dependencies are constructed here and passed down explicitly.
type Server struct {
	config Config
	logger *slog.Logger

	redis      *goredis.Client
	archive    archive.Store
	chunkIndex *vector.OpenSearchStore
	cacheIndex *vector.OpenSearchStore
	producer   *mq.KafkaProducer
	chat       *rag.Service
	sessions   *session.Store
	gate       *feedback.Gate
	semantic   *cache.SemanticCache
}

// NewServer creates a new server with the given configuration
func NewServer(conf Config) (*Server, error) {
	server := &Server{
		config: conf,
	}

	if err := server.initDepend(); err != nil {
		return nil, errors.WithMessage(err, "init server dependency failed")
	}

	if err := server.initPipeline(); err != nil {
		return nil, errors.WithMessage(err, "init pipeline failed")
	}

	return server, nil
}

// initDepend initializes backing stores and clients
func (s *Server) initDepend() error {
	// Initialize log first
	if err := log.Init(s.config.Log); err != nil {
		return errors.WithMessage(err, "failed to init log")
	}

	s.logger = log.Logger("server")
	s.logger.Info("initializing dependencies")

	s.logger.Info("initializing redis")
	client, err := redispkg.New(s.config.Redis)
	if err != nil {
		return errors.WithMessage(err, "failed to init redis")
	}
	s.redis = client

	s.logger.Info("initializing opensearch indices")
	chunkIndex, err := vector.NewOpenSearchStore(s.config.OpenSearch, s.config.Index.Chunks)
	if err != nil {
		return errors.WithMessage(err, "failed to init chunk index")
	}
	s.chunkIndex = chunkIndex

	if s.config.Cache.SemanticEnabled {
		cacheIndex, err := vector.NewOpenSearchStore(s.config.OpenSearch, s.config.Index.SemanticCache)
		if err != nil {
			return errors.WithMessage(err, "failed to init semantic cache index")
		}
		s.cacheIndex = cacheIndex
	}

	s.logger.Info("initializing postgres")
	store, err := archive.NewPostgresStore(s.config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "failed to init postgres")
	}
	s.archive = store

	s.logger.Info("initializing message queue")
	producer, err := mq.NewKafkaProducer(s.config.Kafka)
	if err != nil {
		return errors.WithMessage(err, "failed to init message queue")
	}
	s.producer = producer

	return nil
}

// initPipeline assembles the answer pipeline on top of the stores
func (s *Server) initPipeline() error {
	s.logger.Info("initializing models", "provider", s.config.Models.Provider)

	ctx := context.Background()
	client, err := genkitpkg.New(ctx, s.config.Models)
	if err != nil {
		return errors.WithMessage(err, "failed to init models")
	}

	kv := cache.NewRedisKV(s.redis)
	exact := cache.NewExactCache(kv, s.config.Cache)
	s.sessions = session.NewStore(kv, s.config.Cache)

	embed := rag.CachedEmbedder(exact, s.config.Cache, client.Embed)

	if s.cacheIndex != nil {
		s.semantic = cache.NewSemanticCache(s.cacheIndex, s.config.Cache)
		s.semantic.SetEmbedder(embed)
	}

	var emitter *telemetry.Emitter
	if s.producer != nil {
		emitter = telemetry.NewEmitter(s.producer)
	}

	retriever := rag.NewVectorRetriever(s.chunkIndex, embed, exact, s.config.Cache)
	s.chat = rag.NewService(retriever, client, s.semantic, s.sessions, s.archive, emitter, rag.Options{
		TopK:         s.config.Retrieval.TopK,
		MaxCitations: s.config.Retrieval.MaxCitations,
	})
	s.gate = feedback.NewGate(s.archive, emitter)

	return nil
}

// Start runs the HTTP server until a shutdown signal arrives
func (s *Server) Start() error {
	s.logger.Info("starting", "host", s.config.Server.Host, "port", s.config.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		s.logger.Info("received shutdown signal")
		cancel()
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.runHTTPServer(ctx)
	})

	return g.Wait()
}

// Shutdown releases all held resources
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down")

	ctx := context.Background()

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("failed to close producer", "error", err)
		}
	}

	if s.archive != nil {
		if err := s.archive.Close(ctx); err != nil {
			s.logger.Error("failed to close archive", "error", err)
		}
	}

	if s.chunkIndex != nil {
		_ = s.chunkIndex.Close()
	}
	if s.cacheIndex != nil {
		_ = s.cacheIndex.Close()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("failed to close redis", "error", err)
		}
	}

	return nil
}

func (s *Server) runHTTPServer(ctx context.Context) error {
	serverCfg := http.DefaultServerConfig()
	if s.config.Server.Host != "" {
		serverCfg.Host = s.config.Server.Host
	}
	serverCfg.Port = s.config.Server.Port

	handler := http.NewHandler(s.chat, s.sessions, s.gate, s.archive, s.semantic)
	srv := http.NewServer(handler, serverCfg)

	// Shutdown when context is cancelled
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		return errors.WithMessage(err, "http server error")
	}
	return nil
}
