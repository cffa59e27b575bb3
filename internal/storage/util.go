package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/basekick-labs/wpilog/internal/config"
	"github.com/rs/zerolog"
)

// URI schemes understood by ParseURI.
const (
	SchemeFile  = "file"
	SchemeS3    = "s3"
	SchemeAzure = "azure"
)

// URI is a parsed location. For SchemeFile, Bucket is empty and Key is the
// filesystem path as given.
type URI struct {
	Scheme string
	Bucket string
	Key    string
}

// IsRemote reports whether the location lives in an object store.
func (u URI) IsRemote() bool { return u.Scheme != SchemeFile }

func (u URI) String() string {
	if !u.IsRemote() {
		return u.Key
	}
	return u.Scheme + "://" + u.Bucket + "/" + u.Key
}

// Join appends name to the key as a path element.
func (u URI) Join(name string) URI {
	if !u.IsRemote() {
		u.Key = filepath.Join(u.Key, name)
		return u
	}
	if u.Key == "" || strings.HasSuffix(u.Key, "/") {
		u.Key += name
	} else {
		u.Key += "/" + name
	}
	return u
}

// ParseURI splits s3://bucket/key and azure://container/blob locations.
// Anything without a scheme is a local path.
func ParseURI(s string) (URI, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		if s == "" {
			return URI{}, fmt.Errorf("empty path")
		}
		return URI{Scheme: SchemeFile, Key: s}, nil
	}

	switch scheme {
	case SchemeS3, SchemeAzure:
	case SchemeFile:
		if rest == "" {
			return URI{}, fmt.Errorf("empty path in %q", s)
		}
		return URI{Scheme: SchemeFile, Key: rest}, nil
	default:
		return URI{}, fmt.Errorf("unsupported scheme %q in %q", scheme, s)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return URI{}, fmt.Errorf("missing bucket in %q", s)
	}
	return URI{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// OutputURI parses output and places a relative local path in the
// configured bucket or container when storage.backend is s3 or azure.
// Absolute paths and explicit URIs are returned as parsed.
func OutputURI(cfg *config.StorageConfig, output string) (URI, error) {
	u, err := ParseURI(output)
	if err != nil || u.IsRemote() || filepath.IsAbs(u.Key) || strings.Contains(output, "://") {
		return u, err
	}
	key := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(u.Key)), "./")
	switch strings.ToLower(cfg.Backend) {
	case SchemeS3:
		if cfg.S3Bucket == "" {
			return URI{}, fmt.Errorf("storage.s3_bucket is required for %s", output)
		}
		return URI{Scheme: SchemeS3, Bucket: cfg.S3Bucket, Key: key}, nil
	case SchemeAzure:
		if cfg.AzureContainer == "" {
			return URI{}, fmt.Errorf("storage.azure_container is required for %s", output)
		}
		return URI{Scheme: SchemeAzure, Bucket: cfg.AzureContainer, Key: key}, nil
	case "local":
		if cfg.LocalPath != "" && cfg.LocalPath != "." {
			u.Key = filepath.Join(cfg.LocalPath, u.Key)
		}
	}
	return u, nil
}

// ListURI returns every object under the prefix or directory u names, in
// key order.
func ListURI(ctx context.Context, cfg *config.StorageConfig, u URI, logger zerolog.Logger) ([]URI, error) {
	var (
		backend Backend
		prefix  string
		err     error
	)
	if u.IsRemote() {
		backend, prefix, err = ForURI(ctx, cfg, u, logger)
	} else {
		backend, err = NewLocalBackend(u.Key, logger)
	}
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	keys, err := backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	out := make([]URI, 0, len(keys))
	for _, k := range keys {
		if u.IsRemote() {
			out = append(out, URI{Scheme: u.Scheme, Bucket: u.Bucket, Key: k})
		} else {
			out = append(out, URI{Scheme: SchemeFile, Key: filepath.Join(u.Key, filepath.FromSlash(k))})
		}
	}
	logger.Debug().
		Str("prefix", u.String()).
		Str("backend", backend.Type()).
		Int("objects", len(out)).
		Msg("Listed objects")
	return out, nil
}

// ForURI creates a backend rooted at the bucket or container named by u,
// with credentials from cfg. A local URI yields a backend rooted at the
// directory containing u.Key, and the returned key is the base name.
func ForURI(ctx context.Context, cfg *config.StorageConfig, u URI, logger zerolog.Logger) (Backend, string, error) {
	switch u.Scheme {
	case SchemeS3:
		b, err := NewS3Backend(ctx, s3Config(cfg, u.Bucket), logger)
		return b, u.Key, err
	case SchemeAzure:
		b, err := NewAzureBlobBackend(azureConfig(cfg, u.Bucket), logger)
		return b, u.Key, err
	default:
		b, err := NewLocalBackend(filepath.Dir(u.Key), logger)
		return b, filepath.Base(u.Key), err
	}
}

func s3Config(cfg *config.StorageConfig, bucket string) *S3Config {
	return &S3Config{
		Bucket:    bucket,
		Region:    cfg.S3Region,
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		PathStyle: cfg.S3PathStyle,
	}
}

func azureConfig(cfg *config.StorageConfig, containerName string) *AzureBlobConfig {
	return &AzureBlobConfig{
		ConnectionString:   cfg.AzureConnectionString,
		AccountName:        cfg.AzureAccountName,
		AccountKey:         cfg.AzureAccountKey,
		SASToken:           cfg.AzureSASToken,
		UseManagedIdentity: cfg.AzureUseManagedIdentity,
		ContainerName:      containerName,
		Endpoint:           cfg.AzureEndpoint,
	}
}
