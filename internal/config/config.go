package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	App       AppConfig       `yaml:"app"`
	Auth      AuthConfig      `yaml:"auth"`
	Quota     QuotaConfig     `yaml:"quota"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Retention RetentionConfig `yaml:"retention"`
	Storage   StorageConfig   `yaml:"storage"`
	OCR       OCRConfig       `yaml:"ocr"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxWait         time.Duration `yaml:"max_wait"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// AuthConfig holds the API key allow-set. Each key identifies one tenant.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// QuotaConfig holds per-tenant usage limits
type QuotaConfig struct {
	MonthlyDocLimit int `yaml:"monthly_doc_limit"`
}

// QueueConfig holds job queue configuration
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RetentionConfig bounds how long finished jobs stay in memory. Zero disables a limit.
type RetentionConfig struct {
	MaxAge        time.Duration `yaml:"max_age"`
	MaxJobs       int           `yaml:"max_jobs"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Archive       bool          `yaml:"archive"`
}

// StorageConfig holds upload storage configuration
type StorageConfig struct {
	LocalDir       string `yaml:"local_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// OCRConfig holds the external OCR engine command
type OCRConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Lang    string   `yaml:"lang"`
	UseGPU  bool     `yaml:"use_gpu"`
}

// RateLimitConfig holds per-tenant request rate limits. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      BrokerQueue      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// BrokerQueue holds the RabbitMQ queue bound to the completion exchange
type BrokerQueue struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings. Events wait in a
// buffer of BufferSize; each delivery, retries included, is cut off after Timeout.
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BufferSize        int           `yaml:"buffer_size"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Default returns the configuration used for any field the file leaves unset.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxWait:         30 * time.Second,
		},
		App: AppConfig{
			Name:        "docjobs",
			Version:     "dev",
			Environment: "development",
		},
		Auth:    AuthConfig{APIKeys: []string{"agent1_key"}},
		Quota:   QuotaConfig{MonthlyDocLimit: 1000},
		Queue:   QueueConfig{Capacity: 1024},
		Worker:  WorkerConfig{Concurrency: 1, JobTimeout: 5 * time.Minute, ShutdownTimeout: 30 * time.Second},
		Storage: StorageConfig{LocalDir: "./uploads", MaxUploadBytes: 20 << 20},
		OCR:     OCRConfig{Command: "paddleocr-json", Lang: "en"},
		Retention: RetentionConfig{
			SweepInterval: time.Minute,
		},
		RabbitMQ: RabbitMQConfig{
			Publish: PublishConfig{BufferSize: 256, Timeout: 5 * time.Second},
		},
		Logging: LoggingConfig{Level: "info", Format: "console", Output: "stdout"},
	}
}

// Load reads and parses the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields from the environment variables the service has
// always honoured. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("APP_NAME"); ok && v != "" {
		c.App.Name = v
	}

	if v, ok := lookup("API_KEYS"); ok {
		var keys []string
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Auth.APIKeys = keys
	}

	if v, ok := lookup("MONTHLY_DOC_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MONTHLY_DOC_LIMIT %q: %w", v, err)
		}
		c.Quota.MonthlyDocLimit = n
	}

	if v, ok := lookup("LOCAL_STORAGE_DIR"); ok && v != "" {
		c.Storage.LocalDir = v
	}

	if v, ok := lookup("OCR_LANG"); ok && v != "" {
		c.OCR.Lang = v
	}

	if v, ok := lookup("USE_GPU"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			c.OCR.UseGPU = true
		default:
			c.OCR.UseGPU = false
		}
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if len(c.Auth.APIKeys) == 0 {
		return fmt.Errorf("at least one api key is required")
	}

	if c.Quota.MonthlyDocLimit < 1 {
		return fmt.Errorf("quota monthly_doc_limit must be greater than 0")
	}

	if c.Queue.Capacity < 1 {
		return fmt.Errorf("queue capacity must be greater than 0")
	}

	if err := c.validateWorker(); err != nil {
		return err
	}

	if c.Retention.MaxAge < 0 || c.Retention.MaxJobs < 0 {
		return fmt.Errorf("retention limits must not be negative")
	}

	if c.Retention.Archive && !c.Database.Enabled {
		return fmt.Errorf("retention archive requires database to be enabled")
	}

	if c.Storage.LocalDir == "" {
		return fmt.Errorf("storage local_dir is required")
	}

	if c.OCR.Command == "" {
		return fmt.Errorf("ocr command is required")
	}

	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	if c.Database.Enabled {
		if err := c.validateDatabase(); err != nil {
			return err
		}
	}

	if c.RabbitMQ.Enabled {
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) validateWorker() error {
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}
