package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	appsvc "image-annotator/internal/app"
	"image-annotator/internal/blobstore"
	"image-annotator/internal/cache"
	"image-annotator/internal/caption"
	"image-annotator/internal/config"
	"image-annotator/internal/metrics"
	"image-annotator/internal/model"
	"image-annotator/internal/pkg/logger"
	mysqlClient "image-annotator/internal/platform/mysql"
	rabbitmqClient "image-annotator/internal/platform/rabbitmq"
	redisClient "image-annotator/internal/platform/redis"
	"image-annotator/internal/repository"
	"image-annotator/internal/signing"
	"image-annotator/internal/vision"
	"image-annotator/internal/worker"
)

// Check is a named dependency probe reported by the health endpoint.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Signer      *signing.Signer
	Store       blobstore.Store
	Pipeline    metrics.Pipeline
	HTTPMetrics metrics.HTTP

	Uploads   *appsvc.UploadService
	Catalog   *appsvc.CatalogService
	UploadLog *appsvc.UploadLogService
	Checks    []Check

	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	EventWorker *worker.UploadEventWorker
	classifier  *vision.Classifier

	StartedAt time.Time
}

// New loads configuration and constructs every dependency. Any enabled
// dependency that cannot be reached aborts startup.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, log := a.Config, a.Logger

	if cfg.Metrics.Enabled {
		prom := metrics.NewProm(cfg.Metrics.Namespace)
		a.Pipeline, a.HTTPMetrics = prom, prom
	} else {
		a.Pipeline, a.HTTPMetrics = metrics.Noop{}, metrics.Noop{}
	}

	if err := os.MkdirAll(cfg.Upload.StagingDir, 0o700); err != nil {
		return fmt.Errorf("create staging dir failed: %w", err)
	}

	signer, err := signing.NewSigner(cfg.Storage.SigningSecret, cfg.App.PublicURL)
	if err != nil {
		return fmt.Errorf("build url signer failed: %w", err)
	}
	a.Signer = signer

	store, err := newStore(ctx, cfg, signer, log)
	if err != nil {
		return err
	}
	a.Store = store
	a.Checks = append(a.Checks, Check{Name: "storage", Probe: appsvc.StoreHealthCheck(store)})

	captioner, err := a.newCaptioner()
	if err != nil {
		return err
	}

	var metadataCache appsvc.MetadataCache
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		metadataCache = cache.NewMetadataCache(client, cfg.MetadataCacheTTL())
		a.Checks = append(a.Checks, Check{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx, client)
		}})
	}

	var eventStore appsvc.UploadEventStore
	var eventRepo *repository.UploadEventRepository
	if cfg.MySQL.Enabled {
		db, err := mysqlClient.New(ctx, cfg.MySQLDSN())
		if err != nil {
			return err
		}
		a.MySQL = db
		if err := db.AutoMigrate(&model.UploadEvent{}); err != nil {
			return fmt.Errorf("auto migrate tables failed: %w", err)
		}
		eventRepo = repository.NewUploadEventRepository(db)
		eventStore = eventRepo
		a.Checks = append(a.Checks, Check{Name: "mysql", Probe: func(ctx context.Context) error {
			return mysqlClient.Ping(ctx, db)
		}})
	}

	var publisher appsvc.UploadEventPublisher
	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.UploadEventQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn
		publisher = rabbitmqClient.NewEventPublisher(conn, cfg.RabbitMQ.UploadEventQueue)
		a.Checks = append(a.Checks, Check{Name: "rabbitmq", Probe: func(context.Context) error {
			return rabbitmqClient.Ping(conn)
		}})

		a.EventWorker = worker.NewUploadEventWorker(conn, eventRepo, cfg.RabbitMQ.UploadEventQueue, log)
		if err := a.EventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start upload event worker failed: %w", err)
		}
	}

	a.Uploads = appsvc.NewUploadService(store, captioner, metadataCache, publisher, a.Pipeline, log.Named("upload"), appsvc.UploadConfig{
		StagingDir: cfg.Upload.StagingDir,
		MaxBytes:   cfg.Upload.MaxBytes,
	})
	a.Catalog = appsvc.NewCatalogService(store, metadataCache, log.Named("catalog"), appsvc.CatalogConfig{
		PublicBaseURL: cfg.Storage.PublicBaseURL,
		SignedURLTTL:  cfg.SignedURLTTL(),
	})
	a.UploadLog = appsvc.NewUploadLogService(eventStore)

	log.Info("application initialized",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("caption_provider", cfg.Caption.Provider),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("mysql", cfg.MySQL.Enabled),
		zap.Bool("rabbitmq", cfg.RabbitMQ.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled))
	return nil
}

func newStore(ctx context.Context, cfg *config.Config, signer *signing.Signer, log *zap.Logger) (blobstore.Store, error) {
	sc := cfg.Storage
	switch sc.Backend {
	case config.BackendLocal:
		store, err := blobstore.NewLocalStore(sc.LocalRoot, signer)
		if err != nil {
			return nil, fmt.Errorf("init local store failed: %w", err)
		}
		return store, nil
	case config.BackendMemory:
		log.Warn("using in-memory blob store, uploads are lost on restart")
		return blobstore.NewMemoryStore(signer), nil
	case config.BackendS3:
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
			Bucket:          sc.Bucket,
			Region:          sc.Region,
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			UsePathStyle:    sc.UsePathStyle,
		}, log.Named("s3"))
		if err != nil {
			return nil, fmt.Errorf("init s3 store failed: %w", err)
		}
		return store, nil
	case config.BackendMinio:
		store, err := blobstore.NewMinioStore(ctx, blobstore.MinioOptions{
			Endpoint:        sc.Endpoint,
			AccessKeyID:     sc.AccessKeyID,
			SecretAccessKey: sc.SecretAccessKey,
			Bucket:          sc.Bucket,
			Region:          sc.Region,
			UseSSL:          sc.UseSSL,
		}, log.Named("minio"))
		if err != nil {
			return nil, fmt.Errorf("init minio store failed: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
	}
}

func (a *App) newCaptioner() (caption.Captioner, error) {
	cc := a.Config.Caption
	var base caption.Captioner
	switch cc.Provider {
	case config.ProviderOpenAI:
		base = caption.NewOpenAICompatibleClient(caption.OpenAIConfig{
			BaseURL: cc.BaseURL,
			APIKey:  cc.APIKey,
			Model:   cc.Model,
			Prompt:  cc.Prompt,
		}, &http.Client{Transport: http.DefaultTransport})
	case config.ProviderONNX:
		classifier := vision.NewClassifier(cc.ModelPath, cc.LabelsPath, cc.ONNXSharedLibPath, cc.TopK)
		if err := classifier.Load(); err != nil {
			return nil, fmt.Errorf("load onnx classifier failed: %w", err)
		}
		a.classifier = classifier
		base = caption.NewLabelCaptioner(classifier)
	default:
		return nil, fmt.Errorf("unknown caption provider %q", cc.Provider)
	}
	return caption.NewRetrying(base, a.Config.CaptionTimeout(), a.Config.CaptionRetryDelay(), a.Pipeline, a.Logger.Named("caption")), nil
}

// Close releases resources in reverse dependency order.
func (a *App) Close() error {
	var errs []error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.MySQL != nil {
		if err := mysqlClient.Close(a.MySQL); err != nil {
			errs = append(errs, fmt.Errorf("close mysql: %w", err))
		}
	}
	if a.classifier != nil {
		if err := a.classifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close classifier: %w", err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
