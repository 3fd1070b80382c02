package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// LLM provider constants
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"

	// Default values
	DefaultPort            = 8080
	DefaultHost            = "127.0.0.1"
	DefaultLogLevel        = "info"
	DefaultMaxFormSize     = 25 * 1024 * 1024 // 25MB
	DefaultFillConcurrency = 4
	DefaultFactLimit       = 80
	DefaultModel           = "gpt-4o-mini"
	DefaultManifestName    = "manifest.json"
)

// Config holds all configuration for the PDF form-fill service
type Config struct {
	// Server configuration
	Mode string // "server" for the HTTP API, "stdio" for the MCP control surface
	Host string
	Port int

	// Storage configuration
	Bucket        string // GCS bucket holding uploads, schemas and filled forms
	BucketBaseURL string // public base URL used to build filled-form links
	ManifestName  string // per-user manifest object name

	// LLM configuration
	Provider   string // "openai" or "vertex"
	Model      string
	APIKey     string
	APIBase    string // optional OpenAI-compatible endpoint override
	GCPProject string // vertex provider only
	GCPRegion  string // vertex provider only

	// Pipeline configuration
	FillConcurrency int   // maximum concurrent in-flight field decisions per job
	FactLimit       int   // maximum facts rendered into the decision context
	MaxFormSize     int64 // maximum downloaded form size in bytes

	// Application configuration
	Version     string
	ServiceName string
	LogLevel    string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:            ModeServer,
		Host:            DefaultHost,
		Port:            DefaultPort,
		ManifestName:    DefaultManifestName,
		Provider:        ProviderOpenAI,
		Model:           DefaultModel,
		FillConcurrency: DefaultFillConcurrency,
		FactLimit:       DefaultFactLimit,
		MaxFormSize:     DefaultMaxFormSize,
		Version:         "1.0.0",
		ServiceName:     "pdf-form-filler",
		LogLevel:        DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	pflag.Parse()

	populateConfigFromViper(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix("FORMFILL")
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("bucket", cfg.Bucket)
	viper.SetDefault("bucketbaseurl", cfg.BucketBaseURL)
	viper.SetDefault("manifestname", cfg.ManifestName)
	viper.SetDefault("provider", cfg.Provider)
	viper.SetDefault("model", cfg.Model)
	viper.SetDefault("apikey", cfg.APIKey)
	viper.SetDefault("apibase", cfg.APIBase)
	viper.SetDefault("gcpproject", cfg.GCPProject)
	viper.SetDefault("gcpregion", cfg.GCPRegion)
	viper.SetDefault("concurrency", cfg.FillConcurrency)
	viper.SetDefault("factlimit", cfg.FactLimit)
	viper.SetDefault("maxformsize", cfg.MaxFormSize)
	viper.SetDefault("loglevel", cfg.LogLevel)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Run mode: 'server' for the HTTP API, 'stdio' for MCP standard I/O")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.String("bucket", cfg.Bucket, "Blob storage bucket name")
	pflag.String("bucketbaseurl", cfg.BucketBaseURL, "Public base URL of the storage bucket")
	pflag.String("manifestname", cfg.ManifestName, "Per-user manifest object name")
	pflag.String("provider", cfg.Provider, "LLM provider: 'openai' or 'vertex'")
	pflag.String("model", cfg.Model, "Model id used for field decisions")
	pflag.String("apikey", cfg.APIKey, "API key for the OpenAI provider")
	pflag.String("apibase", cfg.APIBase, "Override base URL for OpenAI-compatible endpoints")
	pflag.String("gcpproject", cfg.GCPProject, "GCP project id (vertex provider)")
	pflag.String("gcpregion", cfg.GCPRegion, "GCP region (vertex provider)")
	pflag.Int("concurrency", cfg.FillConcurrency, "Maximum concurrent field decisions per job")
	pflag.Int("factlimit", cfg.FactLimit, "Maximum facts rendered into the decision context")
	pflag.Int64("maxformsize", cfg.MaxFormSize, "Maximum downloaded form size in bytes")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	for _, name := range []string{
		"mode", "host", "port", "bucket", "bucketbaseurl", "manifestname",
		"provider", "model", "apikey", "apibase", "gcpproject", "gcpregion",
		"concurrency", "factlimit", "maxformsize", "loglevel",
	} {
		_ = viper.BindPFlag(name, pflag.Lookup(name))
	}
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Form Filler - fills PDF form fields from extracted document facts\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --bucket=my-bucket --apikey=sk-...            # HTTP API on 127.0.0.1:8080\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio --bucket=my-bucket               # MCP stdio mode\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --provider=vertex --gcpproject=p --gcpregion=us-central1\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_MODE          Run mode\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_BUCKET        Storage bucket name\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_BUCKETBASEURL Public bucket base URL\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_PROVIDER      LLM provider\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_MODEL         Decision model id\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_APIKEY        OpenAI API key\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_CONCURRENCY   Field decision concurrency\n")
		fmt.Fprintf(os.Stderr, "  FORMFILL_LOGLEVEL      Log level\n")
	}
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.Bucket = viper.GetString("bucket")
	cfg.BucketBaseURL = viper.GetString("bucketbaseurl")
	cfg.ManifestName = viper.GetString("manifestname")
	cfg.Provider = viper.GetString("provider")
	cfg.Model = viper.GetString("model")
	cfg.APIKey = viper.GetString("apikey")
	cfg.APIBase = viper.GetString("apibase")
	cfg.GCPProject = viper.GetString("gcpproject")
	cfg.GCPRegion = viper.GetString("gcpregion")
	cfg.FillConcurrency = viper.GetInt("concurrency")
	cfg.FactLimit = viper.GetInt("factlimit")
	cfg.MaxFormSize = viper.GetInt64("maxformsize")
	cfg.LogLevel = viper.GetString("loglevel")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.Provider != ProviderOpenAI && c.Provider != ProviderVertex {
		return fmt.Errorf("invalid provider: %s (must be 'openai' or 'vertex')", c.Provider)
	}

	if c.Provider == ProviderVertex && (c.GCPProject == "" || c.GCPRegion == "") {
		return errors.New("vertex provider requires gcpproject and gcpregion")
	}

	if c.Model == "" {
		return errors.New("model cannot be empty")
	}

	if c.FillConcurrency < 1 {
		return errors.New("concurrency must be at least 1")
	}

	if c.FactLimit < 1 {
		return errors.New("fact limit must be at least 1")
	}

	if c.MaxFormSize <= 0 {
		return errors.New("maximum form size must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// IsServerMode returns true if the service runs the HTTP API
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the service runs as an MCP stdio server
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
