package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" envDefault:"fern-api"`
	Port                          int      `env:"APP_PORT" envDefault:"8000"`
	LogLevel                      string   `env:"LOG_LEVEL" envDefault:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" envDefault:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" envDefault:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" envDefault:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" envDefault:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" envDefault:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" envDefault:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" envDefault:"GET,POST" envSeparator:","`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" envDefault:"5"`

	// Public base URL the providers redirect back to
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8000"`

	// Auth Enabled - when false, user and org ids come from form fields or X-Org-ID and X-User-ID headers
	AuthEnabled bool `env:"AUTH_ENABLED" envDefault:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" envDefault:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" envDefault:""`

	// Redis host
	RedisHost string `env:"REDIS_HOST" envDefault:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" envDefault:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" envDefault:"0"`

	// Lifetime of pending states, verifiers and issued credentials
	VaultTTL time.Duration `env:"VAULT_TTL" envDefault:"600s"`

	// Outbound provider calls
	ProviderHTTPTimeout time.Duration `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"20s"`
	// Max concurrent per-base table fetches for Airtable (1 = sequential)
	AirtableTableFetchConcurrency int `env:"AIRTABLE_TABLE_FETCH_CONCURRENCY" envDefault:"5"`

	HubSpot  ProviderConfig `envPrefix:"HUBSPOT_"`
	Airtable ProviderConfig `envPrefix:"AIRTABLE_"`
	Notion   ProviderConfig `envPrefix:"NOTION_"`

	// Kafka publication of connection events and items
	KafkaEnabled bool `env:"KAFKA_ENABLED" envDefault:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	// Topic for connection lifecycle events
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" envDefault:"integration-events"`
	// Topic for normalized integration items
	KafkaItemsTopic string `env:"KAFKA_ITEMS_TOPIC" envDefault:"integration-items"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" envDefault:"false"`
	// OTLP collector endpoint, host:port or URL. Empty uses the local collector port for the protocol
	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" envDefault:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" envDefault:"true"`
	// Extra export headers as key=value pairs (comma-separated)
	OTLPHeaders map[string]string `env:"OTLP_HEADERS" envKeyValSeparator:"="`
	// Export timeout
	OTLPTimeout time.Duration `env:"OTLP_TIMEOUT" envDefault:"10s"`
}

// ProviderConfig holds the OAuth client registration and outbound limits for one provider.
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	// Overrides the default authorization, token and API endpoints (tests, sandboxes)
	AuthURL  string `env:"AUTH_URL"`
	TokenURL string `env:"TOKEN_URL"`
	APIURL   string `env:"API_URL"`
	// Requests per second allowed against the provider API, 0 uses the provider default
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"0"`
}

// RedirectURI returns the OAuth callback registered for the provider.
func (c Config) RedirectURI(provider string) string {
	return fmt.Sprintf("%s/api/v1/integrations/%s/oauth2callback", c.PublicBaseURL, provider)
}

// Load reads an optional .env file and then parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
