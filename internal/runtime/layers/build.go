package layers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/drblury/actuator/internal/runtime/config"
	"github.com/drblury/actuator/internal/runtime/logging"
)

// S3ClientFactory builds the client for the application S3 object. Tests
// replace it with a fake.
var S3ClientFactory = func(ctx context.Context, cfg *config.Config) (ObjectGetter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("application layer: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// FromConfig assembles the store in priority order: runtime, system,
// environment, application, database. The dynamic layer is added by the
// first put. The application and database layers are loaded before
// returning.
func FromConfig(ctx context.Context, cfg *config.Config, refresh RefreshFunc, logger logging.ServiceLogger) (*Store, error) {
	if logger == nil {
		logger = logging.NopServiceLogger()
	}
	store := NewStore(refresh, NewRuntimeLayer(), NewSystemLayer(), NewEnvironmentLayer())
	if cfg == nil {
		return store, nil
	}

	if app, err := applicationFromConfig(ctx, cfg); err != nil {
		return nil, err
	} else if app != nil {
		if err := app.Reload(ctx); err != nil {
			return nil, err
		}
		store.Add(app)
		logger.Info("application layer loaded", logging.LogFields{"keys": len(app.Keys())})
	}

	if cfg.DatabaseDriver != "" {
		db, err := OpenDatabaseLayer(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, cfg.DatabaseTable)
		if err != nil {
			return nil, err
		}
		store.Add(db)
		logger.Info("database layer loaded", logging.LogFields{"table": cfg.DatabaseTable, "keys": len(db.Keys())})
	}
	return store, nil
}

func applicationFromConfig(ctx context.Context, cfg *config.Config) (*ApplicationLayer, error) {
	var src *S3Source
	if cfg.ApplicationS3Bucket != "" {
		client, err := S3ClientFactory(ctx, cfg)
		if err != nil {
			return nil, err
		}
		src = &S3Source{Client: client, Bucket: cfg.ApplicationS3Bucket, Key: cfg.ApplicationS3Key}
	}
	if len(cfg.ApplicationFiles) == 0 && src == nil {
		return nil, nil
	}
	return NewApplicationLayer(cfg.ApplicationFiles, src), nil
}

// Application returns the application layer, if any.
func (s *Store) Application() *ApplicationLayer {
	a, _ := s.find(KindApplication).(*ApplicationLayer)
	return a
}

// WatchApplication reloads the application layer and refreshes dependents
// whenever one of its files changes. It blocks until ctx is done.
func (s *Store) WatchApplication(ctx context.Context, logger logging.ServiceLogger) error {
	app := s.Application()
	if app == nil {
		return nil
	}
	if logger == nil {
		logger = logging.NopServiceLogger()
	}
	return app.Watch(ctx, logger, func(ctx context.Context) {
		if err := app.Reload(ctx); err != nil {
			logger.Error("application reload failed", err, nil)
			return
		}
		if err := s.Refresh(ctx); err != nil {
			logger.Error("refresh after application reload failed", err, nil)
		}
	})
}
