package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog"
)

// AzureBlobConfig selects a container and credentials. The first usable
// method wins: connection string, SAS token, shared key, managed identity.
type AzureBlobConfig struct {
	ConnectionString   string
	AccountName        string
	AccountKey         string
	SASToken           string
	UseManagedIdentity bool
	ContainerName      string
	Endpoint           string // overrides the account URL, e.g. for Azurite
}

// serviceURL returns the blob service endpoint for account-based auth.
func (cfg *AzureBlobConfig) serviceURL() string {
	if cfg.Endpoint != "" {
		return cfg.Endpoint
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName)
}

// AzureBlobBackend stores objects as block blobs in one container.
type AzureBlobBackend struct {
	container *container.Client
	name      string
	logger    zerolog.Logger
}

// NewAzureBlobBackend builds a container client from cfg.
func NewAzureBlobBackend(cfg *AzureBlobConfig, logger zerolog.Logger) (*AzureBlobBackend, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("Azure container name is required")
	}
	log := logger.With().Str("component", "azure-storage").Str("container", cfg.ContainerName).Logger()

	client, method, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("auth", method).Msg("Created Azure Blob client")

	return &AzureBlobBackend{
		container: client.ServiceClient().NewContainerClient(cfg.ContainerName),
		name:      cfg.ContainerName,
		logger:    log,
	}, nil
}

func newAzureClient(cfg *AzureBlobConfig) (*azblob.Client, string, error) {
	switch {
	case cfg.ConnectionString != "":
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		return c, "connection_string", wrapAuth("connection string", err)

	case cfg.AccountName != "" && cfg.SASToken != "":
		u := cfg.serviceURL() + "?" + strings.TrimPrefix(cfg.SASToken, "?")
		c, err := azblob.NewClientWithNoCredential(u, nil)
		return c, "sas_token", wrapAuth("SAS token", err)

	case cfg.AccountName != "" && cfg.AccountKey != "":
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, "", wrapAuth("shared key", err)
		}
		c, err := azblob.NewClientWithSharedKeyCredential(cfg.serviceURL(), cred, nil)
		return c, "shared_key", wrapAuth("shared key", err)

	case cfg.UseManagedIdentity && cfg.AccountName != "":
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, "", wrapAuth("managed identity", err)
		}
		c, err := azblob.NewClient(cfg.serviceURL(), cred, nil)
		return c, "managed_identity", wrapAuth("managed identity", err)
	}
	return nil, "", fmt.Errorf("no Azure credentials configured: set connection_string, account_name with account_key or sas_token, or account_name with use_managed_identity")
}

func wrapAuth(method string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("failed to create Azure client with %s: %w", method, err)
}

func (b *AzureBlobBackend) Write(ctx context.Context, path string, data []byte) error {
	return b.WriteReader(ctx, path, bytes.NewReader(data), int64(len(data)))
}

// WriteReader uploads reader as a block blob. UploadStream chunks the
// body, so size is informational.
func (b *AzureBlobBackend) WriteReader(ctx context.Context, path string, reader io.Reader, size int64) error {
	start := time.Now()
	ct := contentType(path)

	_, err := b.container.NewBlockBlobClient(path).UploadStream(ctx, reader, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", b.URI(path), err)
	}

	b.logger.Debug().
		Str("path", path).
		Int64("size", size).
		Dur("duration", time.Since(start)).
		Msg("Wrote blob")
	return nil
}

// ReadTo streams the blob body to writer.
func (b *AzureBlobBackend) ReadTo(ctx context.Context, path string, writer io.Writer) error {
	resp, err := b.container.NewBlobClient(path).DownloadStream(ctx, nil)
	if err != nil {
		if isAzureNotFound(err) {
			return fmt.Errorf("%s: %w", b.URI(path), ErrNotExist)
		}
		return fmt.Errorf("failed to read %s: %w", b.URI(path), err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("failed to read %s: %w", b.URI(path), err)
	}
	return nil
}

func (b *AzureBlobBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	pager := b.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", b.URI(prefix), err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				keys = append(keys, *item.Name)
			}
		}
	}
	return keys, nil
}

func (b *AzureBlobBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.container.NewBlobClient(path).GetProperties(ctx, nil)
	if err == nil {
		return true, nil
	}
	if isAzureNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", b.URI(path), err)
}

func (b *AzureBlobBackend) Close() error { return nil }

// URI returns the azure:// location of key.
func (b *AzureBlobBackend) URI(key string) string {
	return URI{Scheme: SchemeAzure, Bucket: b.name, Key: key}.String()
}

func (b *AzureBlobBackend) Type() string { return "azure" }

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return strings.Contains(err.Error(), "BlobNotFound")
}
