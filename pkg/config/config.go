package config

import "os"

// Config holds server configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// DBDriver selects the posting store backend: "sqlite" or "postgres".
	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	// AuditDBPath is the local sqlite file holding the hash-chained
	// audit trail, regardless of the posting store driver.
	AuditDBPath string

	// RedisAddr, when set, switches the posting lock from the in-process
	// mutex to the shared Redis lock.
	RedisAddr     string
	RedisPassword string

	RulebookPath string
	RefDataPath  string
	ProfilesDir  string

	// EntityCode, when set, applies the matching entity profile: ledger
	// restrictions, export policy and per-entity config file overrides.
	EntityCode string

	OTLPEndpoint     string
	TelemetryEnabled bool
	Environment      string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}

	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://hedgeledger@localhost:5432/hedgeledger?sslmode=disable"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "hedgeledger.db"
	}

	auditDBPath := os.Getenv("AUDIT_DB_PATH")
	if auditDBPath == "" {
		auditDBPath = "hedgeledger_audit.db"
	}

	rulebookPath := os.Getenv("RULEBOOK_PATH")
	if rulebookPath == "" {
		rulebookPath = "config/rulebook.yaml"
	}

	refdataPath := os.Getenv("REFDATA_PATH")
	if refdataPath == "" {
		refdataPath = "config/refdata.yaml"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "config/profiles"
	}

	otlpEndpoint := os.Getenv("OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	return &Config{
		Port:             port,
		LogLevel:         logLevel,
		LogFormat:        logFormat,
		DBDriver:         driver,
		DatabaseURL:      dbURL,
		SQLitePath:       sqlitePath,
		AuditDBPath:      auditDBPath,
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RulebookPath:     rulebookPath,
		RefDataPath:      refdataPath,
		ProfilesDir:      profilesDir,
		EntityCode:       os.Getenv("ENTITY_CODE"),
		OTLPEndpoint:     otlpEndpoint,
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
		Environment:      environment,
	}
}
