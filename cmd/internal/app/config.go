package app

import (
	"io"
	"time"
)

// Config contains the runtime configuration loaded from environment variables.
// Auth, session, passwordless and third-party settings are loaded by their own packages.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Empty selects the in-memory stores.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, AUTHGATE_TOKEN_HMAC_KEY must be set (>= 32 bytes).
	RequireTokenHMAC bool

	WebsiteDomain string
	RoutePrefix   string

	Tracing bool
	// TraceWriter receives exported spans when Tracing is on. Defaults to os.Stderr.
	TraceWriter io.Writer
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("AUTHGATE_HTTP_ADDR", "0.0.0.0:3000"),
		LogLevel:  EnvString("AUTHGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("AUTHGATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("AUTHGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("AUTHGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("AUTHGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("AUTHGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("AUTHGATE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    EnvInt("AUTHGATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("AUTHGATE_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("AUTHGATE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("AUTHGATE_DB_MIN_CONNS", 0),

		ReadinessRequireDB: EnvBool("AUTHGATE_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("AUTHGATE_REQUIRE_TOKEN_HMAC", false),

		WebsiteDomain: EnvString("AUTHGATE_WEBSITE_DOMAIN", "http://localhost:3000"),
		RoutePrefix:   EnvString("AUTHGATE_ROUTE_PREFIX", ""),

		Tracing: EnvBool("AUTHGATE_TRACING", false),
	}
}
