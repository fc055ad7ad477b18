package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/templui/transit/internal/file"
)

// "-" means the account that owns the credentials.
const glacierAccount = "-"

type glacierAPI interface {
	UploadArchive(ctx context.Context, params *glacier.UploadArchiveInput, optFns ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error)
	DeleteArchive(ctx context.Context, params *glacier.DeleteArchiveInput, optFns ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error)
}

// Glacier stores files as archives in a vault. References are archive ids;
// there are no names on the remote side, so Overwrite has no effect and
// Folder only prefixes the archive description.
type Glacier struct {
	client glacierAPI
	vault  string
}

type GlacierConfig struct {
	Region    string
	Vault     string
	AccessKey string
	SecretKey string
	Endpoint  string
}

func NewGlacier(ctx context.Context, cfg GlacierConfig) (*Glacier, error) {
	if err := requireAll(KindGlacier, map[string]string{
		"vault":     cfg.Vault,
		"accessKey": cfg.AccessKey,
		"secretKey": cfg.SecretKey,
	}); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := glacier.NewFromConfig(awsCfg, func(o *glacier.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	slog.Info("initializing Glacier transport", "vault", cfg.Vault, "region", cfg.Region)
	return &Glacier{client: client, vault: cfg.Vault}, nil
}

func (g *Glacier) Transport(ctx context.Context, f *file.File, dest Destination) (string, error) {
	body, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer body.Close()

	out, err := g.client.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          aws.String(glacierAccount),
		VaultName:          aws.String(g.vault),
		ArchiveDescription: aws.String(objectKey(dest.Folder, f.Basename())),
		Body:               body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}
	if out.ArchiveId == nil {
		return "", fmt.Errorf("failed to upload archive: no archive id returned")
	}

	slog.Debug("uploaded to Glacier", "vault", g.vault, "archive", *out.ArchiveId)
	return *out.ArchiveId, nil
}

// Delete accepts an archive id or an archive location
// (/<account>/vaults/<vault>/archives/<id>). An archive that is already gone
// counts as deleted.
func (g *Glacier) Delete(ctx context.Context, ref string) error {
	id := path.Base(KeyFromReference(ref, ""))

	_, err := g.client.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: aws.String(glacierAccount),
		VaultName: aws.String(g.vault),
		ArchiveId: aws.String(id),
	})
	var notFound *types.ResourceNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	return nil
}
