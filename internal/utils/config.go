package utils

import (
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" or "1h" parse.
// Bare numbers are treated as seconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	d.Duration = time.Duration(n) * time.Second
	return nil
}

// PaperSize describes a paper format in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig holds connection settings for the API token store.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Config is the full application configuration, loaded from YAML with
// environment overrides for container deployments.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
		Level      string `yaml:"level"`
	} `yaml:"logger"`

	Cache struct {
		RedisHost       string   `yaml:"redis_host"`
		PDFCacheDB      int      `yaml:"pdf_cache_db"`
		RateLimitDB     int      `yaml:"rate_limit_db"`
		PDFCacheEnabled bool     `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     Duration `yaml:"pdf_cache_ttl"`
	} `yaml:"cache"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          Duration `yaml:"interval"`
		UserLimit         int      `yaml:"user_limit"`
		EnableUserLimiter bool     `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	PDF struct {
		ChromePath      string               `yaml:"chrome_path"`
		ChromeNoSandbox bool                 `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int                  `yaml:"chrome_pool_size"`
		TimeoutSecs     int                  `yaml:"timeout_secs"`
		DefaultPaper    string               `yaml:"default_paper"`
		PaperSizes      map[string]PaperSize `yaml:"paper_sizes"`
		UserDataDir     string               `yaml:"user_data_dir"`
	} `yaml:"pdf"`

	Limits struct {
		MaxCSVBytes int `yaml:"max_csv_bytes"`
		MaxPDFBytes int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Paystub struct {
		LogoDir        string   `yaml:"logo_dir"`
		OutputDir      string   `yaml:"output_dir"`
		DefaultCountry string   `yaml:"default_country"`
		DefaultCompany string   `yaml:"default_company"`
		EmailDelay     Duration `yaml:"email_delay"`
	} `yaml:"paystub"`

	SMTP struct {
		Server   string   `yaml:"server"`
		Port     int      `yaml:"port"`
		Username string   `yaml:"username"`
		Password string   `yaml:"password"`
		From     string   `yaml:"from"`
		CC       []string `yaml:"cc"`
	} `yaml:"smtp"`

	Store struct {
		MySQLDSN string `yaml:"mysql_dsn"`
	} `yaml:"store"`

	Debug bool `yaml:"debug"`
}

// AppConfig is the process-wide configuration instance. Tests mutate it
// directly; production code goes through LoadConfig/GetConfig.
var AppConfig Config

var configMu sync.RWMutex

// defaultConfig returns a Config with sane defaults for local development.
func defaultConfig() Config {
	var cfg Config
	cfg.Server.Host = ""
	cfg.Server.Port = ":8000"

	cfg.Logger.File = "logs/paystubs.log"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 5
	cfg.Logger.MaxAgeDays = 14
	cfg.Logger.Level = "info"

	cfg.Cache.RedisHost = "localhost:6379"
	cfg.Cache.PDFCacheDB = 0
	cfg.Cache.RateLimitDB = 1
	cfg.Cache.PDFCacheTTL = Duration{24 * time.Hour}

	cfg.RateLimiter.Interval = Duration{time.Minute}

	cfg.PDF.TimeoutSecs = 30
	cfg.PDF.DefaultPaper = "LETTER"
	cfg.PDF.PaperSizes = map[string]PaperSize{
		"A4":     {Width: 8.27, Height: 11.69},
		"LETTER": {Width: 8.5, Height: 11},
	}

	cfg.Limits.MaxCSVBytes = 5 * 1024 * 1024
	cfg.Limits.MaxPDFBytes = 20 * 1024 * 1024

	cfg.Paystub.LogoDir = "logos"
	cfg.Paystub.OutputDir = "generated_paystubs"
	cfg.Paystub.DefaultCountry = "do"
	cfg.Paystub.DefaultCompany = "atdev"
	cfg.Paystub.EmailDelay = Duration{time.Second}

	cfg.SMTP.Server = "sandbox.smtp.mailtrap.io"
	cfg.SMTP.Port = 2525
	cfg.SMTP.From = "payroll@company.com"
	cfg.SMTP.CC = []string{"hr@company.com"}

	return cfg
}

// LoadConfig reads the YAML config file (CONFIG_PATH or ./config.yaml),
// applies environment overrides and stores the result in AppConfig.
// A missing file is not an error; defaults are used.
func LoadConfig() Config {
	cfg := defaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic("invalid config file " + path + ": " + err.Error())
		}
	}

	applyEnvOverrides(&cfg)

	configMu.Lock()
	AppConfig = cfg
	configMu.Unlock()
	return cfg
}

// applyEnvOverrides maps the container environment onto the config. These
// are the variables the deployment images have always used.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOGO_DIR"); v != "" {
		cfg.Paystub.LogoDir = v
	}
	if v := os.Getenv("PAYSTUB_OUTPUT_DIR"); v != "" {
		cfg.Paystub.OutputDir = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		cfg.SMTP.Server = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = p
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.SMTP.From = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Cache.RedisHost = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Store.MySQLDSN = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		switch v {
		case "true", "1", "t", "True":
			cfg.Debug = true
		}
	}
}

// GetConfig returns the current process-wide configuration.
func GetConfig() Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return AppConfig
}
