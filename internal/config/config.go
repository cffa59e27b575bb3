package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the wpilog tool
type Config struct {
	Log     LogConfig
	Parse   ParseConfig
	Export  ExportConfig
	Storage StorageConfig
	Convert ConvertConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type ParseConfig struct {
	Lenient       bool  // Skip malformed data records instead of aborting (default: false)
	Mmap          bool  // Memory-map local input files instead of reading them (default: true)
	DecodeMsgpack bool  // Render msgpack entries as JSON text (default: false)
	MaxFileSize   int64 // Largest input accepted after decompression, in bytes
}

type ExportConfig struct {
	Format          string // Output format: parquet or csv
	Compression     string // Parquet compression: uncompressed, snappy, gzip, lz4, zstd
	UseDictionary   bool   // Use dictionary encoding
	WriteStatistics bool   // Write Parquet statistics
	DataPageVersion string // Parquet data page version: 1.0 or 2.0
	CSVNull         string // Text written for null CSV cells
}

type StorageConfig struct {
	Backend   string
	LocalPath string
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool   // Use HTTPS for S3 connections
	S3PathStyle bool   // Use path-style addressing (required for MinIO)
	// Azure Blob Storage configuration
	AzureConnectionString   string // Connection string (simplest auth method)
	AzureAccountName        string // Storage account name
	AzureAccountKey         string // Storage account key
	AzureSASToken           string // SAS token for scoped access
	AzureContainer          string // Container name
	AzureEndpoint           string // Custom endpoint (for Azurite testing)
	AzureUseManagedIdentity bool   // Use managed identity (Azure-hosted deployments)
}

type ConvertConfig struct {
	Workers   int  // Concurrent conversions (default: CPU count, min 1, max 16)
	NoClobber bool // Fail a job whose output already exists (default: false)
}

// Load loads configuration from environment and the default config file locations
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads configuration from environment and path. An empty path
// searches ./wpilog.toml, /etc/wpilog/ and $HOME/.wpilog/.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("WPILOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("wpilog")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/wpilog/")
		v.AddConfigPath("$HOME/.wpilog/")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			// Config file not found is OK, use defaults
		}
	}

	maxFileSize, err := ParseSize(v.GetString("parse.max_file_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid parse.max_file_size: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Parse: ParseConfig{
			Lenient:       v.GetBool("parse.lenient"),
			Mmap:          v.GetBool("parse.mmap"),
			DecodeMsgpack: v.GetBool("parse.decode_msgpack"),
			MaxFileSize:   maxFileSize,
		},
		Export: ExportConfig{
			Format:          v.GetString("export.format"),
			Compression:     v.GetString("export.compression"),
			UseDictionary:   v.GetBool("export.use_dictionary"),
			WriteStatistics: v.GetBool("export.write_statistics"),
			DataPageVersion: v.GetString("export.data_page_version"),
			CSVNull:         v.GetString("export.csv_null"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalPath:   v.GetString("storage.local_path"),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),
			// Azure Blob Storage
			AzureConnectionString:   v.GetString("storage.azure_connection_string"),
			AzureAccountName:        v.GetString("storage.azure_account_name"),
			AzureAccountKey:         v.GetString("storage.azure_account_key"),
			AzureSASToken:           v.GetString("storage.azure_sas_token"),
			AzureContainer:          v.GetString("storage.azure_container"),
			AzureEndpoint:           v.GetString("storage.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("storage.azure_use_managed_identity"),
		},
		Convert: ConvertConfig{
			Workers:   clampWorkers(v.GetInt("convert.workers")),
			NoClobber: v.GetBool("convert.no_clobber"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Parse defaults
	v.SetDefault("parse.lenient", false)
	v.SetDefault("parse.mmap", true)
	v.SetDefault("parse.decode_msgpack", false)
	v.SetDefault("parse.max_file_size", "4GB")

	// Export defaults
	v.SetDefault("export.format", "parquet")
	v.SetDefault("export.compression", "snappy")
	v.SetDefault("export.use_dictionary", true)
	v.SetDefault("export.write_statistics", true)
	v.SetDefault("export.data_page_version", "2.0")
	v.SetDefault("export.csv_null", "")

	// Storage defaults
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_path", ".")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false) // Use virtual-hosted style by default (set true for MinIO)

	// Convert defaults
	v.SetDefault("convert.workers", getDefaultWorkers())
	v.SetDefault("convert.no_clobber", false)
}

func getDefaultWorkers() int {
	return clampWorkers(runtime.NumCPU())
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}

var (
	exportFormats = map[string]bool{"parquet": true, "csv": true}
	compressions  = map[string]bool{"uncompressed": true, "snappy": true, "gzip": true, "lz4": true, "zstd": true}
	backends      = map[string]bool{"local": true, "s3": true, "azure": true}
)

// Validate rejects settings no component can act on.
func (cfg *Config) Validate() error {
	if !exportFormats[strings.ToLower(cfg.Export.Format)] {
		return fmt.Errorf("invalid export.format %q (use parquet or csv)", cfg.Export.Format)
	}
	if !compressions[strings.ToLower(cfg.Export.Compression)] {
		return fmt.Errorf("invalid export.compression %q (use uncompressed, snappy, gzip, lz4 or zstd)", cfg.Export.Compression)
	}
	if v := cfg.Export.DataPageVersion; v != "1.0" && v != "2.0" {
		return fmt.Errorf("invalid export.data_page_version %q (use 1.0 or 2.0)", v)
	}
	if !backends[strings.ToLower(cfg.Storage.Backend)] {
		return fmt.Errorf("invalid storage.backend %q (use local, s3 or azure)", cfg.Storage.Backend)
	}
	if cfg.Parse.MaxFileSize <= 0 {
		return fmt.Errorf("parse.max_file_size must be positive")
	}
	return nil
}

// ParseSize parses a human-readable size string (e.g., "1GB", "500MB", "100KB") to bytes.
// Supports: B, KB, MB, GB (case-insensitive).
// Returns the size in bytes or an error if the format is invalid.
func ParseSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(strings.ToUpper(sizeStr))
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type unitInfo struct {
		suffix     string
		multiplier int64
	}
	units := []unitInfo{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, unit := range units {
		if strings.HasSuffix(sizeStr, unit.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(sizeStr, unit.suffix))

			var num float64
			var trailing string
			n, _ := fmt.Sscanf(numStr, "%f%s", &num, &trailing)
			if n == 0 {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			if trailing != "" {
				// Likely an unrecognized unit like "T" in "1TB"
				return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
			}
			if num < 0 {
				return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
			}
			return int64(num * float64(unit.multiplier)), nil
		}
	}

	// Plain number of bytes
	var num int64
	var trailing string
	n, _ := fmt.Sscanf(sizeStr, "%d%s", &num, &trailing)
	if n == 0 || trailing != "" {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '1GB', '500MB', '100KB')", sizeStr)
	}
	if num < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}
	return num, nil
}
