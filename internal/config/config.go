// Package config はgeekctlの設定を読み込む。
//
// 設定は既定値、設定ファイル（.geekctl.yaml）、GEEKCTL_ で始まる環境変数の順に上書きされる。
// 起動時に1回読み込み、イミュータブルとして扱う。
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix は環境変数の接頭辞。api.base_url は GEEKCTL_API_BASE_URL で指定する。
const EnvPrefix = "GEEKCTL"

// トークンの保存先
const (
	TokenBackendFile     = "file"
	TokenBackendMemory   = "memory"
	TokenBackendPostgres = "postgres"
)

// Config はgeekctl全体の設定を保持する。
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Token    TokenConfig    `mapstructure:"token"`
	Articles ArticlesConfig `mapstructure:"articles"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Import   ImportConfig   `mapstructure:"import"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   OutputConfig   `mapstructure:"output"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Mock     MockConfig     `mapstructure:"mock"`

	// File は読み込んだ設定ファイルのパス。設定ファイルがない場合は空。
	File string `mapstructure:"-" json:"-"`
}

// APIConfig はCMSプラットフォームAPIへの接続設定。
type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // 1秒あたりの送信数。0は無制限
	RateBurst int           `mapstructure:"rate_burst"`
}

// TokenConfig は認可トークンの保存先の設定。
type TokenConfig struct {
	Backend     string `mapstructure:"backend"`
	Path        string `mapstructure:"path"`
	Key         string `mapstructure:"key"`
	DatabaseURL string `mapstructure:"database_url"`
}

// ArticlesConfig は記事一覧の設定。
type ArticlesConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// CacheConfig は記事詳細キャッシュの設定。
type CacheConfig struct {
	ArticleTTL  time.Duration `mapstructure:"article_ttl"`
	ArticleSize int           `mapstructure:"article_size"`
}

// ImportConfig はフィード取り込みの設定。
type ImportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	MaxSize int64         `mapstructure:"max_size"`
}

// LoggingConfig はログ出力の設定。
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// OutputConfig は端末出力の設定。
type OutputConfig struct {
	Colors bool `mapstructure:"colors"`
}

// MetricsConfig はメトリクス出力の設定。
type MetricsConfig struct {
	// Textfile はnode_exporterのtextfileコレクタ向けの出力先。空の場合は出力しない。
	Textfile string `mapstructure:"textfile"`
}

// MockConfig は開発用スタブサーバーの設定。
type MockConfig struct {
	Port          string  `mapstructure:"port"`
	RateLimit     float64 `mapstructure:"rate_limit"`
	AllowedOrigin string  `mapstructure:"allowed_origin"` // CORSを許可するオリジン。空の場合は無効
}

// LoadOption はLoadの挙動を変えるオプション。
type LoadOption func(*loadOptions)

type loadOptions struct {
	skipAPI bool
}

// SkipAPIValidation はapi.*の検証を省略する。APIに接続しないコマンド（mock-server、config）で使う。
func SkipAPIValidation() LoadOption {
	return func(o *loadOptions) {
		o.skipAPI = true
	}
}

// Load は設定ファイルと環境変数から設定を読み込む。
// cfgFileが空の場合はカレントディレクトリと $HOME/.config/geekctl の .geekctl.yaml を探す。
// 設定ファイルが見つからない場合は既定値と環境変数のみを使う。
func Load(cfgFile string, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".geekctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/geekctl")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := validate(&cfg, o.skipAPI); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// DefaultTokenPath はトークンファイルの既定の保存先を返す。
func DefaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".geekctl-storage.json")
	}
	return filepath.Join(home, ".config", "geekctl", "storage.json")
}

// setDefaults は既定値を設定する。
// 環境変数だけで指定できるよう、既定値のないキーも空値で登録する。
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", 5*time.Second)
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.rate_burst", 1)

	v.SetDefault("token.backend", TokenBackendFile)
	v.SetDefault("token.path", DefaultTokenPath())
	v.SetDefault("token.key", "token_key")
	v.SetDefault("token.database_url", "")

	v.SetDefault("articles.page_size", 10)

	v.SetDefault("cache.article_ttl", time.Minute)
	v.SetDefault("cache.article_size", 128)

	v.SetDefault("import.timeout", 10*time.Second)
	v.SetDefault("import.max_size", 5<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("output.colors", true)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("mock.port", "8080")
	v.SetDefault("mock.rate_limit", 20)
	v.SetDefault("mock.allowed_origin", "")
}

// validate は設定値を検証する。
func validate(cfg *Config, skipAPI bool) error {
	if !skipAPI {
		if err := validateAPI(cfg.API); err != nil {
			return err
		}
	}

	switch cfg.Token.Backend {
	case TokenBackendFile:
		if cfg.Token.Path == "" {
			return fmt.Errorf("token.path is required for the file backend")
		}
	case TokenBackendMemory:
	case TokenBackendPostgres:
		if cfg.Token.DatabaseURL == "" {
			return fmt.Errorf("token.database_url is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid token.backend: %s (must be file, memory, or postgres)", cfg.Token.Backend)
	}
	if cfg.Token.Key == "" {
		return fmt.Errorf("token.key must not be empty")
	}

	if cfg.Articles.PageSize < 1 || cfg.Articles.PageSize > 100 {
		return fmt.Errorf("articles.page_size must be between 1 and 100, got %d", cfg.Articles.PageSize)
	}
	if cfg.Cache.ArticleSize < 1 {
		return fmt.Errorf("cache.article_size must be positive, got %d", cfg.Cache.ArticleSize)
	}
	if cfg.Import.MaxSize < 1 {
		return fmt.Errorf("import.max_size must be positive, got %d", cfg.Import.MaxSize)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", cfg.Logging.Level)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s (must be text or json)", cfg.Logging.Format)
	}

	return nil
}

// validateAPI はAPI接続設定を検証する。
func validateAPI(api APIConfig) error {
	if api.BaseURL == "" {
		return fmt.Errorf("api.base_url is required (set %s_API_BASE_URL or api.base_url in .geekctl.yaml)", EnvPrefix)
	}
	u, err := url.Parse(api.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q (must be an absolute http or https URL)", api.BaseURL)
	}
	if api.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %s", api.Timeout)
	}
	if api.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative, got %v", api.RateLimit)
	}
	return nil
}
