package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// supported providers and backends
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	AuthFirebase = "firebase"
	AuthStatic   = "static"

	StorageSQLite    = "sqlite"
	StoragePostgres  = "postgres"
	StorageFirestore = "firestore"
	StorageMongo     = "mongodb"
	StorageDynamo    = "dynamodb"
)

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:3000,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=2m,description=HTTP server read/write timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Auth     AuthConfig     `yaml:"auth" json:"auth" jsonschema:"description=Caller identity verification"`
	Firebase FirebaseConfig `yaml:"firebase" json:"firebase" jsonschema:"description=Firebase project shared by auth and firestore storage"`
	Storage  StorageConfig  `yaml:"storage" json:"storage" jsonschema:"description=Quota storage"`
	Quota    QuotaConfig    `yaml:"quota" json:"quota" jsonschema:"description=Monthly usage quota"`
	YouTube  YouTubeConfig  `yaml:"youtube" json:"youtube" jsonschema:"description=YouTube comment fetching"`
	LLM      LLMConfig      `yaml:"llm" json:"llm" jsonschema:"description=Generation service used for comment analysis"`
}

// AuthConfig defines how bearer tokens are verified
type AuthConfig struct {
	Provider     string            `yaml:"provider" json:"provider" jsonschema:"default=firebase,enum=firebase,enum=static,description=Token verifier"`
	StaticTokens map[string]string `yaml:"static_tokens" json:"static_tokens" jsonschema:"description=Token to caller id map for the static verifier"`
}

// FirebaseConfig holds firebase project credentials
type FirebaseConfig struct {
	ProjectID         string `yaml:"project_id" json:"project_id" jsonschema:"description=Firebase project id"`
	CredentialsFile   string `yaml:"credentials_file" json:"credentials_file" jsonschema:"description=Service account JSON file"`
	CredentialsBase64 string `yaml:"credentials_base64" json:"credentials_base64" jsonschema:"description=Base64 encoded service account JSON, takes precedence over the file"`
}

// StorageConfig holds quota storage settings
type StorageConfig struct {
	Type            string        `yaml:"type" json:"type" jsonschema:"default=sqlite,enum=sqlite,enum=postgres,enum=firestore,enum=mongodb,enum=dynamodb,description=Storage backend"`
	DSN             string        `yaml:"dsn" json:"dsn" jsonschema:"description=Connection string for sqlite and postgres"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=1h,description=Connection maximum lifetime"`
	Collection      string        `yaml:"collection" json:"collection" jsonschema:"default=users,description=Collection or table name for document stores"`
	MongoURI        string        `yaml:"mongo_uri" json:"mongo_uri" jsonschema:"description=MongoDB connection URI"`
	MongoDatabase   string        `yaml:"mongo_database" json:"mongo_database" jsonschema:"default=commentscope,description=MongoDB database"`
	DynamoRegion    string        `yaml:"dynamo_region" json:"dynamo_region" jsonschema:"default=us-west-2,description=DynamoDB region"`
	DynamoEndpoint  string        `yaml:"dynamo_endpoint" json:"dynamo_endpoint" jsonschema:"description=Custom DynamoDB endpoint for local testing"`
}

// QuotaConfig holds usage limits
type QuotaConfig struct {
	FreeLimit int            `yaml:"free_limit" json:"free_limit" jsonschema:"default=5,minimum=1,description=Monthly analyses for free callers"`
	Plans     map[string]int `yaml:"plans" json:"plans" jsonschema:"description=Monthly analyses per subscription status, applied on period reset"`
	Timezone  string         `yaml:"timezone" json:"timezone" jsonschema:"default=UTC,description=Timezone of monthly period boundaries"`
}

// YouTubeConfig holds comment fetching settings
type YouTubeConfig struct {
	Endpoint     string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=Custom YouTube Data API endpoint"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Timeout of a single API page request"`
	DefaultCount int           `yaml:"default_count" json:"default_count" jsonschema:"default=100,description=Comments fetched when request has no count"`
	MaxComments  int           `yaml:"max_comments" json:"max_comments" jsonschema:"default=500,description=Upper bound of comments per analysis"`
}

// LLMConfig holds generation service settings
type LLMConfig struct {
	Provider        string        `yaml:"provider" json:"provider" jsonschema:"default=openai,enum=openai,enum=anthropic,description=Backend API flavor"`
	Endpoint        string        `yaml:"endpoint" json:"endpoint" jsonschema:"description=API endpoint, OpenAI-compatible for the openai provider"`
	APIKey          string        `yaml:"api_key" json:"api_key" jsonschema:"description=API key (can use environment variable)"`
	Model           string        `yaml:"model" json:"model" jsonschema:"description=Model name (gemini-2.5-flash for openai or claude-sonnet-4-5 for anthropic when empty)"`
	Temperature     float64       `yaml:"temperature" json:"temperature" jsonschema:"default=0.3,description=Temperature for response generation"`
	MaxTokens       int           `yaml:"max_tokens" json:"max_tokens" jsonschema:"default=16384,description=Maximum tokens in response"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=90s,description=Generation request timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent" json:"max_concurrent" jsonschema:"default=4,minimum=1,description=Maximum concurrent generation requests"`
	DefaultLanguage string        `yaml:"default_language" json:"default_language" jsonschema:"default=Traditional Chinese,description=Output language when request has none"`
	UseJSONMode     bool          `yaml:"use_json_mode" json:"use_json_mode" jsonschema:"default=false,description=Use JSON response format (openai provider only)"`
	SystemPrompt    string        `yaml:"system_prompt" json:"system_prompt" jsonschema:"description=System prompt override"`
}

// default gemini endpoint speaking the OpenAI chat completion protocol
const defaultLLMEndpoint = "https://generativelanguage.googleapis.com/v1beta/openai"

// default models per provider
const (
	defaultOpenAIModel    = "gemini-2.5-flash"
	defaultAnthropicModel = "claude-sonnet-4-5"
)

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	// server
	if c.Server.Listen == "" {
		c.Server.Listen = ":3000"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 2 * time.Minute
	}

	if c.Auth.Provider == "" {
		c.Auth.Provider = AuthFirebase
	}

	// storage
	if c.Storage.Type == "" {
		c.Storage.Type = StorageSQLite
	}
	if c.Storage.DSN == "" && c.Storage.Type == StorageSQLite {
		c.Storage.DSN = "file:commentscope.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Storage.MaxOpenConns == 0 {
		c.Storage.MaxOpenConns = 10
	}
	if c.Storage.MaxIdleConns == 0 {
		c.Storage.MaxIdleConns = 5
	}
	if c.Storage.ConnMaxLifetime == 0 {
		c.Storage.ConnMaxLifetime = time.Hour
	}
	if c.Storage.Collection == "" {
		c.Storage.Collection = "users"
	}
	if c.Storage.MongoDatabase == "" {
		c.Storage.MongoDatabase = "commentscope"
	}
	if c.Storage.DynamoRegion == "" {
		c.Storage.DynamoRegion = "us-west-2"
	}

	// quota
	if c.Quota.FreeLimit == 0 {
		c.Quota.FreeLimit = 5
	}
	if c.Quota.Timezone == "" {
		c.Quota.Timezone = "UTC"
	}

	// youtube
	if c.YouTube.Timeout == 0 {
		c.YouTube.Timeout = 30 * time.Second
	}
	if c.YouTube.DefaultCount == 0 {
		c.YouTube.DefaultCount = 100
	}
	if c.YouTube.MaxComments == 0 {
		c.YouTube.MaxComments = 500
	}

	// llm
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.Endpoint == "" && c.LLM.Provider == ProviderOpenAI {
		c.LLM.Endpoint = defaultLLMEndpoint
	}
	if c.LLM.Model == "" {
		c.LLM.Model = defaultOpenAIModel
		if c.LLM.Provider == ProviderAnthropic {
			c.LLM.Model = defaultAnthropicModel
		}
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.3
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 16384
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 90 * time.Second
	}
	if c.LLM.MaxConcurrent == 0 {
		c.LLM.MaxConcurrent = 4
	}
	if c.LLM.DefaultLanguage == "" {
		c.LLM.DefaultLanguage = "Traditional Chinese"
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	switch cfg.Auth.Provider {
	case AuthFirebase:
	case AuthStatic:
		if len(cfg.Auth.StaticTokens) == 0 {
			return fmt.Errorf("auth.static_tokens is required for static auth")
		}
	default:
		return fmt.Errorf("unsupported auth.provider %q", cfg.Auth.Provider)
	}

	switch cfg.Storage.Type {
	case StorageSQLite, StoragePostgres:
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for %s", cfg.Storage.Type)
		}
	case StorageFirestore:
		if cfg.Firebase.ProjectID == "" {
			return fmt.Errorf("firebase.project_id is required for firestore storage")
		}
	case StorageMongo:
		if cfg.Storage.MongoURI == "" {
			return fmt.Errorf("storage.mongo_uri is required for mongodb storage")
		}
	case StorageDynamo:
	default:
		return fmt.Errorf("unsupported storage.type %q", cfg.Storage.Type)
	}

	if cfg.Quota.FreeLimit < 1 {
		return fmt.Errorf("quota.free_limit must be at least 1")
	}
	for plan, limit := range cfg.Quota.Plans {
		if limit < 1 {
			return fmt.Errorf("quota.plans.%s must be at least 1", plan)
		}
	}
	if _, err := time.LoadLocation(cfg.Quota.Timezone); err != nil {
		return fmt.Errorf("quota.timezone: %w", err)
	}

	if cfg.YouTube.DefaultCount < 1 || cfg.YouTube.DefaultCount > cfg.YouTube.MaxComments {
		return fmt.Errorf("youtube.default_count must be between 1 and youtube.max_comments")
	}

	if cfg.LLM.Provider != ProviderOpenAI && cfg.LLM.Provider != ProviderAnthropic {
		return fmt.Errorf("unsupported llm.provider %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxConcurrent < 1 {
		return fmt.Errorf("llm.max_concurrent must be at least 1")
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if cfg.Server.Timeout <= cfg.LLM.Timeout {
		return fmt.Errorf("server timeout must be longer than llm timeout")
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}

// Location returns the timezone of quota periods
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Credentials returns decoded service account JSON from CredentialsBase64,
// nil if it is not set and credentials come from the file or the environment
func (f FirebaseConfig) Credentials() ([]byte, error) {
	if f.CredentialsBase64 == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(f.CredentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("decode firebase.credentials_base64: %w", err)
	}
	return data, nil
}
