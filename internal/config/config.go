package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigFile = "config.json"
	DefaultAddress    = ":5000"
	DefaultMongoURI   = "mongodb://localhost:27017/ai-chatbot"
	DefaultProvider   = "openai"
	DefaultStore      = "memory"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Store       StoreConfig               `json:"store"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Mongo       MongoConfig               `json:"mongo"`
	Badger      BadgerConfig              `json:"badger"`
	Voice       VoiceConfig               `json:"voice"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address" validate:"required"`
	ChatProvider  string `json:"chat_provider" validate:"oneof=openai claude gemini"`
	LogLevel      string `json:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// StoreConfig selects the message store variant at startup.
type StoreConfig struct {
	Driver string `json:"driver" validate:"oneof=memory mongo sqlite3 mysql redis badger"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

type BadgerConfig struct {
	Path string `json:"path"`
}

type VoiceConfig struct {
	TranscriptionModel string `json:"transcription_model"`
	SpeechModel        string `json:"speech_model"`
	Voice              string `json:"voice"`
}

// Provider returns the configuration of the named provider, or an empty one.
func (c *Config) Provider(name string) ProviderConfig {
	if c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}

// envOverrides lists the environment variables that take precedence over the
// config file.
type envOverrides struct {
	ConfigPath   string `env:"CHATBOT_CONFIG"`
	Store        string `env:"CHATBOT_STORE"`
	Address      string `env:"CHATBOT_ADDR"`
	Provider     string `env:"CHATBOT_PROVIDER"`
	LogLevel     string `env:"LOG_LEVEL"`
	OpenAIKey    string `env:"OPENAI_API_KEY"`
	OpenAIKeyAlt string `env:"OPENAI_API_KEY_ENV_VAR"`
	ClaudeKey    string `env:"ANTHROPIC_API_KEY"`
	GeminiKey    string `env:"GEMINI_API_KEY"`
	MongoURI     string `env:"MONGODB_URI"`
	DatabaseURL  string `env:"DATABASE_URL"`
	SQLiteDSN    string `env:"SQLITE_DSN"`
	RedisHost    string `env:"REDIS_HOST"`
	BadgerPath   string `env:"BADGER_PATH"`
}

var validate = validator.New()

// Load reads configuration from a .env file, the JSON config at path (or
// CHATBOT_CONFIG, or config.json when present) and the environment, in that
// order of increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var overrides envOverrides
	if _, err := env.UnmarshalFromEnviron(&overrides); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	explicit := true
	if path == "" {
		path = overrides.ConfigPath
	}
	if path == "" {
		path = DefaultConfigFile
		explicit = false
	}

	var cfg Config
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := decodeFile(absPath, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		absPath = ""
	}

	applyDefaults(&cfg)
	applyOverrides(&cfg, overrides)
	cfg.Store.Driver = normalizeDriver(cfg.Store.Driver)

	if absPath != "" {
		baseDir := filepath.Dir(absPath)
		if db, ok := cfg.Databases["sqlite3"]; ok && db.DSN != "" && db.DSN != ":memory:" && !filepath.IsAbs(db.DSN) && !strings.HasPrefix(db.DSN, "file:") {
			db.DSN = filepath.Join(baseDir, db.DSN)
			cfg.Databases["sqlite3"] = db
		}
		if cfg.Badger.Path != "" && !filepath.IsAbs(cfg.Badger.Path) {
			cfg.Badger.Path = filepath.Join(baseDir, cfg.Badger.Path)
		}
	}

	uri, err := ResolveMongoURI(overrides.MongoURI, overrides.DatabaseURL, cfg.Mongo.URI)
	if err != nil && cfg.Store.Driver == "mongo" {
		return nil, err
	}
	cfg.Mongo.URI = uri

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func decodeFile(absPath string, cfg *Config) error {
	file, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.BasicConfig.ServerAddress == "" {
		cfg.BasicConfig.ServerAddress = DefaultAddress
	}
	if cfg.BasicConfig.ChatProvider == "" {
		cfg.BasicConfig.ChatProvider = DefaultProvider
	}
	if cfg.BasicConfig.LogLevel == "" {
		cfg.BasicConfig.LogLevel = "info"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStore
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Databases == nil {
		cfg.Databases = make(map[string]DatabaseConfig)
	}
	if _, ok := cfg.Databases["sqlite3"]; !ok {
		cfg.Databases["sqlite3"] = DatabaseConfig{DSN: "./data/chat.db"}
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "chat"
	}
	if cfg.Mongo.Collection == "" {
		cfg.Mongo.Collection = "messages"
	}
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = "./data/badger"
	}
	if cfg.Voice.TranscriptionModel == "" {
		cfg.Voice.TranscriptionModel = "whisper-1"
	}
	if cfg.Voice.SpeechModel == "" {
		cfg.Voice.SpeechModel = "tts-1"
	}
	if cfg.Voice.Voice == "" {
		cfg.Voice.Voice = "alloy"
	}
}

func applyOverrides(cfg *Config, o envOverrides) {
	if o.Store != "" {
		cfg.Store.Driver = strings.ToLower(o.Store)
	}
	if o.Address != "" {
		cfg.BasicConfig.ServerAddress = o.Address
	}
	if o.Provider != "" {
		cfg.BasicConfig.ChatProvider = strings.ToLower(o.Provider)
	}
	if o.LogLevel != "" {
		cfg.BasicConfig.LogLevel = strings.ToLower(o.LogLevel)
	}
	openAIKey := o.OpenAIKey
	if openAIKey == "" {
		openAIKey = o.OpenAIKeyAlt
	}
	setProviderKey(cfg, "openai", openAIKey)
	setProviderKey(cfg, "claude", o.ClaudeKey)
	setProviderKey(cfg, "gemini", o.GeminiKey)
	if o.SQLiteDSN != "" {
		db := cfg.Databases["sqlite3"]
		db.DSN = o.SQLiteDSN
		cfg.Databases["sqlite3"] = db
	}
	if o.RedisHost != "" {
		cfg.Redis.Host = o.RedisHost
	}
	if o.BadgerPath != "" {
		cfg.Badger.Path = o.BadgerPath
	}
}

// normalizeDriver lower-cases the store driver and maps the "sqlite" alias
// onto the registered sqlite3 driver name.
func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "sqlite" {
		return "sqlite3"
	}
	return driver
}

func setProviderKey(cfg *Config, provider, key string) {
	if key == "" {
		return
	}
	p := cfg.Providers[provider]
	p.APIKey = key
	cfg.Providers[provider] = p
}

// ResolveMongoURI picks the document database connection string: MONGODB_URI,
// then DATABASE_URL unless it points at a relational database, then the
// config file, then the local default. The result must be a mongodb URI.
func ResolveMongoURI(mongoURI, databaseURL, fileURI string) (string, error) {
	uri := strings.TrimSpace(mongoURI)
	if uri == "" && !isRelationalURL(databaseURL) {
		uri = strings.TrimSpace(databaseURL)
	}
	if uri == "" {
		uri = strings.TrimSpace(fileURI)
	}
	if uri == "" {
		uri = DefaultMongoURI
	}
	lower := strings.ToLower(uri)
	if !strings.HasPrefix(lower, "mongodb://") && !strings.HasPrefix(lower, "mongodb+srv://") {
		return DefaultMongoURI, fmt.Errorf("mongo uri must use the mongodb scheme, got %q", redact(uri))
	}
	return uri, nil
}

func isRelationalURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "postgres") || strings.Contains(lower, "mysql")
}

func redact(uri string) string {
	if i := strings.Index(uri, "://"); i >= 0 {
		return uri[:i] + "://..."
	}
	return "..."
}
