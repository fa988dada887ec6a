package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudimg/internal/core/domain"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"
)

const EnvPrefix = "CLOUDIMG"

type Cloudinary struct {
	CloudName       string
	APIKey          string
	APISecret       string
	UploadFolder    string
	APIBaseURL      string
	DeliveryBaseURL string
}

type Breakpoints struct {
	FluidMinWidth int
	FluidMaxWidth int
	MaxImages     int
	UseCloudinary bool
	CreateDerived bool
	BytesStep     int
}

type Upload struct {
	OverwriteExisting bool
	MaxPerRun         int
	MaxLocalSize      int64
	Timeout           time.Duration
}

type Descriptor struct {
	FixedWidth  int
	Base64Width int
	Spec        domain.TransformationSpec
}

type Ingest struct {
	Workers      int
	Manifest     string
	Output       string
	AssetTimeout time.Duration
}

type S3 struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	Region    string
	AccessKey string
	SecretKey string
	Insecure  bool
}

type Store struct {
	Driver      string
	DiskPath    string
	S3          S3
	PostgresURL string
}

type Log struct {
	Level  string
	Pretty bool
}

type Telegram struct {
	BotToken string
	ChatID   int64
}

type OpenRouter struct {
	APIKey string
	Model  string
}

type Config struct {
	Cloudinary      Cloudinary
	Breakpoints     Breakpoints
	Upload          Upload
	Descriptor      Descriptor
	Ingest          Ingest
	Store           Store
	Log             Log
	Telegram        Telegram
	OpenRouter      OpenRouter
	MetricsTextfile string
}

// New returns a viper instance reading the TOML file at path, with CLOUDIMG_ prefixed environment
// variables taking precedence. An empty path looks for config.toml in the working directory and
// tolerates its absence.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", domain.ErrConfigurationInvalid, path, err)
		}
		return v, nil
	}

	v.AddConfigPath(".")
	v.SetConfigName("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", domain.ErrConfigurationInvalid, err)
		}
	}

	return v, nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("cloudinary.api_base_url", "https://api.cloudinary.com")
	v.SetDefault("cloudinary.delivery_base_url", "https://res.cloudinary.com")

	v.SetDefault("breakpoints.fluid_min_width", domain.DefaultFluidMinWidth)
	v.SetDefault("breakpoints.fluid_max_width", domain.DefaultFluidMaxWidth)
	v.SetDefault("breakpoints.max_images", domain.DefaultMaxImages)
	v.SetDefault("breakpoints.use_cloudinary", false)
	v.SetDefault("breakpoints.create_derived", false)
	v.SetDefault("breakpoints.bytes_step", domain.DefaultBytesStep)

	v.SetDefault("upload.overwrite_existing", false)
	v.SetDefault("upload.max_per_run", 0)
	v.SetDefault("upload.max_local_size", "10MB")
	v.SetDefault("upload.timeout", "60s")

	v.SetDefault("descriptor.fixed_width", domain.DefaultFixedWidth)
	v.SetDefault("descriptor.base64_width", domain.DefaultBase64Width)
	v.SetDefault("descriptor.defaults", domain.DefaultTransformations)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.manifest", "assets.yaml")
	v.SetDefault("ingest.output", "nodes.jsonl")
	v.SetDefault("ingest.asset_timeout", "5m")

	v.SetDefault("store.driver", "disk")
	v.SetDefault("store.disk.path", ".cloudimg")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("openrouter.model", "openai/gpt-4.1-mini")
}

// Load reads every key from v. Values that cannot be parsed wrap domain.ErrConfigurationInvalid.
func Load(v *viper.Viper) (Config, error) {
	maxLocalSize, err := humanize.ParseBytes(v.GetString("upload.max_local_size"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: upload.max_local_size: %w", domain.ErrConfigurationInvalid, err)
	}

	uploadTimeout, err := time.ParseDuration(v.GetString("upload.timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: upload.timeout: %w", domain.ErrConfigurationInvalid, err)
	}

	assetTimeout, err := time.ParseDuration(v.GetString("ingest.asset_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: ingest.asset_timeout: %w", domain.ErrConfigurationInvalid, err)
	}

	cfg := Config{
		Cloudinary: Cloudinary{
			CloudName:       v.GetString("cloudinary.cloud_name"),
			APIKey:          v.GetString("cloudinary.api_key"),
			APISecret:       v.GetString("cloudinary.api_secret"),
			UploadFolder:    v.GetString("cloudinary.upload_folder"),
			APIBaseURL:      v.GetString("cloudinary.api_base_url"),
			DeliveryBaseURL: v.GetString("cloudinary.delivery_base_url"),
		},
		Breakpoints: Breakpoints{
			FluidMinWidth: v.GetInt("breakpoints.fluid_min_width"),
			FluidMaxWidth: v.GetInt("breakpoints.fluid_max_width"),
			MaxImages:     v.GetInt("breakpoints.max_images"),
			UseCloudinary: v.GetBool("breakpoints.use_cloudinary"),
			CreateDerived: v.GetBool("breakpoints.create_derived"),
			BytesStep:     v.GetInt("breakpoints.bytes_step"),
		},
		Upload: Upload{
			OverwriteExisting: v.GetBool("upload.overwrite_existing"),
			MaxPerRun:         v.GetInt("upload.max_per_run"),
			MaxLocalSize:      int64(maxLocalSize),
			Timeout:           uploadTimeout,
		},
		Descriptor: Descriptor{
			FixedWidth:  v.GetInt("descriptor.fixed_width"),
			Base64Width: v.GetInt("descriptor.base64_width"),
			Spec: domain.TransformationSpec{
				Defaults:        v.GetStringSlice("descriptor.defaults"),
				Transformations: v.GetStringSlice("descriptor.transformations"),
				Chained:         v.GetStringSlice("descriptor.chained"),
			},
		},
		Ingest: Ingest{
			Workers:      v.GetInt("ingest.workers"),
			Manifest:     v.GetString("ingest.manifest"),
			Output:       v.GetString("ingest.output"),
			AssetTimeout: assetTimeout,
		},
		Store: Store{
			Driver:   v.GetString("store.driver"),
			DiskPath: v.GetString("store.disk.path"),
			S3: S3{
				Endpoint:  v.GetString("store.s3.endpoint"),
				Bucket:    v.GetString("store.s3.bucket"),
				Prefix:    v.GetString("store.s3.prefix"),
				Region:    v.GetString("store.s3.region"),
				AccessKey: v.GetString("store.s3.access_key"),
				SecretKey: v.GetString("store.s3.secret_key"),
				Insecure:  v.GetBool("store.s3.insecure"),
			},
			PostgresURL: v.GetString("store.postgres.url"),
		},
		Log: Log{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		Telegram: Telegram{
			BotToken: v.GetString("telegram.bot_token"),
			ChatID:   v.GetInt64("telegram.chat_id"),
		},
		OpenRouter: OpenRouter{
			APIKey: v.GetString("openrouter.api_key"),
			Model:  v.GetString("openrouter.model"),
		},
		MetricsTextfile: v.GetString("metrics.textfile"),
	}

	return cfg, nil
}

// Validate checks the values every command needs. Ingestion additionally needs API credentials.
func (c Config) Validate(ingest bool) error {
	var problems []string

	if c.Cloudinary.CloudName == "" {
		problems = append(problems, "cloudinary.cloud_name is required")
	}
	if ingest && (c.Cloudinary.APIKey == "" || c.Cloudinary.APISecret == "") {
		problems = append(problems, "cloudinary.api_key and cloudinary.api_secret are required for ingestion")
	}
	if c.Breakpoints.FluidMinWidth < 1 || c.Breakpoints.FluidMaxWidth < 1 {
		problems = append(problems, "breakpoint widths must be positive")
	}
	if c.Breakpoints.FluidMinWidth > c.Breakpoints.FluidMaxWidth {
		problems = append(problems, "breakpoints.fluid_min_width exceeds breakpoints.fluid_max_width")
	}
	if c.Breakpoints.MaxImages < 1 {
		problems = append(problems, "breakpoints.max_images must be at least 1")
	}
	if c.Descriptor.FixedWidth < 1 || c.Descriptor.Base64Width < 1 {
		problems = append(problems, "descriptor widths must be positive")
	}
	if c.Upload.MaxPerRun < 0 {
		problems = append(problems, "upload.max_per_run must not be negative")
	}
	if ingest && c.Ingest.Workers < 1 {
		problems = append(problems, "ingest.workers must be at least 1")
	}
	switch c.Store.Driver {
	case "memory", "disk", "s3", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log.level %q", c.Log.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfigurationInvalid, strings.Join(problems, "; "))
	}

	return nil
}
