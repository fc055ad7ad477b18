package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/templui/transit/internal/attachment"
	"github.com/templui/transit/internal/config"
	"github.com/templui/transit/internal/db"
	"github.com/templui/transit/internal/repository"
	"github.com/templui/transit/internal/service"
	"github.com/templui/transit/internal/transport"
)

// DefaultField is the field used when no attachments file exists.
const DefaultField = "file"

type App struct {
	Cfg               *config.Config
	DB                *sqlx.DB
	AttachmentService *service.AttachmentService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Attachment fields
	named, err := LoadFields(cfg)
	if err != nil {
		database.Close()
		return nil, err
	}
	fields, err := attachment.BuildAll(ctx, named, Deps(cfg))
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to build attachment fields: %w", err)
	}

	// Repositories
	recordRepository := repository.NewRecordRepository(database)

	// Services
	attachmentService := service.NewAttachmentService(recordRepository, fields)

	return &App{
		Cfg:               cfg,
		DB:                database,
		AttachmentService: attachmentService,
	}, nil
}

// Base is the field configuration every attachments file is merged over.
func Base(cfg *config.Config) attachment.Config {
	base := attachment.Defaults()
	base.UploadDir = cfg.UploadDir
	base.FinalDir = cfg.FinalDir
	base.FinalPath = cfg.FinalPath
	base.MaxNameLength = cfg.MaxNameLength
	return base
}

// LoadFields reads the attachments file. Without one, a single field named
// DefaultField with the base configuration is used.
func LoadFields(cfg *config.Config) ([]attachment.Named, error) {
	base := Base(cfg)

	doc, err := attachment.Load(cfg.AttachmentsFile)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no attachments file found, using defaults", "path", cfg.AttachmentsFile)
		return []attachment.Named{{Name: DefaultField, Config: base}}, nil
	}
	if err != nil {
		return nil, err
	}

	return doc.Resolve(base)
}

// Deps wires the shared transport credentials and the remote import client.
func Deps(cfg *config.Config) attachment.Deps {
	return attachment.Deps{
		HTTPClient: &http.Client{Timeout: cfg.RemoteTimeout},
		TransportDefaults: map[transport.Kind]transport.Spec{
			transport.KindS3: {
				Region:    cfg.S3Region,
				Bucket:    cfg.S3Bucket,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
				Endpoint:  cfg.S3Endpoint,
				PublicURL: cfg.S3PublicURL,
			},
			transport.KindGlacier: {
				Region:    cfg.GlacierRegion,
				Vault:     cfg.GlacierVault,
				AccessKey: cfg.S3AccessKey,
				SecretKey: cfg.S3SecretKey,
			},
			transport.KindSwift: {
				Username:  cfg.SwiftUsername,
				APIKey:    cfg.SwiftAPIKey,
				AuthURL:   cfg.SwiftAuthURL,
				Region:    cfg.SwiftRegion,
				Tenant:    cfg.SwiftTenant,
				Container: cfg.SwiftContainer,
				PublicURL: cfg.SwiftPublicURL,
			},
		},
	}
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
