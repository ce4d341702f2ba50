package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// PricingConfig defines the tunable parts of the cost model.
type PricingConfig struct {
    BWStandardPrice      int
    BWDiscountPrice      int
    BWDiscountSheets     int
    QualitySurchargeHigh int
    // PointsDivisor converts rupiah spent into loyalty points
    // (points = cost / divisor). The original product had 2000 and 4000 in
    // different screens; 2000 is what both credit paths actually used, so it
    // is the default here until product confirms otherwise.
    PointsDivisor float64
}

// GatewayConfig defines payment gateway (Snap API) connectivity.
type GatewayConfig struct {
    BaseURL        string
    ServerKey      string
    ClientKey      string
    Production     bool
    SessionTimeout time.Duration
    StatusTimeout  time.Duration
}

// BackendConfig defines the remote print-serving (VPS) API.
type BackendConfig struct {
    BaseURL      string
    PrintTimeout time.Duration
    TxnTimeout   time.Duration
    UserTimeout  time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
}

// StorageConfig defines uploaded-document storage.
type StorageConfig struct {
    S3Bucket       string
    S3Region       string
    S3AccessKey    string
    S3SecretKey    string
    LocalDir       string
    EncryptionKey  string
    UploadMaxBytes int64
}

// WorkerConfig defines the background reconciliation worker.
type WorkerConfig struct {
    Concurrency      int
    SyncTimeout      time.Duration
    RetryDelay       time.Duration
    MaxAttempts      int
    CooldownPerOrder time.Duration
}

// TransactionConfig defines local transaction lifecycle knobs.
type TransactionConfig struct {
    TTL         time.Duration
    SessionTTL  time.Duration
    DocumentTTL time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging     LoggingConfig
    Axiom       AxiomConfig
    Pricing     PricingConfig
    Gateway     GatewayConfig
    Backend     BackendConfig
    Queue       QueueConfig
    Storage     StorageConfig
    Worker      WorkerConfig
    Transaction TransactionConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/printkiosk.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_printkiosk",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Pricing defaults (rupiah per sheet; paper-size tables live in pricing.DefaultRates)
    cfg.Pricing = PricingConfig{
        BWStandardPrice:      parseInt(getEnv("PRICE_BW_STANDARD", "400"), 400),
        BWDiscountPrice:      parseInt(getEnv("PRICE_BW_DISCOUNT", "200"), 200),
        BWDiscountSheets:     parseInt(getEnv("PRICE_BW_DISCOUNT_SHEETS", "10"), 10),
        QualitySurchargeHigh: parseInt(getEnv("PRICE_QUALITY_SURCHARGE_HIGH", "500"), 500),
        PointsDivisor:        parseFloat(getEnv("POINTS_DIVISOR", "2000"), 2000),
    }

    // Gateway defaults (sandbox unless told otherwise)
    isProd := getEnv("MIDTRANS_ENVIRONMENT", "sandbox") == "production"
    defaultBase := "https://api.sandbox.midtrans.com"
    if isProd { defaultBase = "https://api.midtrans.com" }
    cfg.Gateway = GatewayConfig{
        BaseURL:        getEnv("MIDTRANS_BASE_URL", defaultBase),
        ServerKey:      getEnv("MIDTRANS_SERVER_KEY", ""),
        ClientKey:      getEnv("MIDTRANS_CLIENT_KEY", ""),
        Production:     isProd,
        SessionTimeout: parseDuration(getEnv("GATEWAY_SESSION_TIMEOUT", "15s"), 15*time.Second),
        StatusTimeout:  parseDuration(getEnv("GATEWAY_STATUS_TIMEOUT", "10s"), 10*time.Second),
    }

    // Backend defaults
    cfg.Backend = BackendConfig{
        BaseURL:      getEnv("VPS_API_URL", "http://localhost:3001"),
        PrintTimeout: parseDuration(getEnv("BACKEND_PRINT_TIMEOUT", "30s"), 30*time.Second),
        TxnTimeout:   parseDuration(getEnv("BACKEND_TXN_TIMEOUT", "15s"), 15*time.Second),
        UserTimeout:  parseDuration(getEnv("BACKEND_USER_TIMEOUT", "8s"), 8*time.Second),
    }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "txns:sync:requests"),
        Group:        getEnv("QUEUE_GROUP", "workers:sync"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "200ms"), 200*time.Millisecond),
    }

    // Storage defaults
    cfg.Storage = StorageConfig{
        S3Bucket:       getEnv("AWS_S3_BUCKET", ""),
        S3Region:       getEnv("AWS_REGION", "ap-southeast-1"),
        S3AccessKey:    getEnv("AWS_ACCESS_KEY_ID", ""),
        S3SecretKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
        LocalDir:       getEnv("UPLOAD_DIR", "uploads"),
        EncryptionKey:  getEnv("DOC_ENCRYPTION_KEY", ""),
        UploadMaxBytes: int64(parseInt(getEnv("UPLOAD_MAX_MB", "32"), 32)) << 20,
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:      parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        SyncTimeout:      parseDuration(getEnv("SYNC_TIMEOUT", "30s"), 30*time.Second),
        RetryDelay:       parseDuration(getEnv("SYNC_RETRY_DELAY", "10s"), 10*time.Second),
        MaxAttempts:      parseInt(getEnv("SYNC_MAX_ATTEMPTS", "3"), 3),
        CooldownPerOrder: parseDuration(getEnv("ORDER_COOLDOWN", "3s"), 3*time.Second),
    }

    // Transaction defaults (the backend owns the authoritative expiry deadline;
    // TTL here is only what we stamp onto new pending records)
    cfg.Transaction = TransactionConfig{
        TTL:         parseDuration(getEnv("TRANSACTION_TTL", "1h"), time.Hour),
        SessionTTL:  parseDuration(getEnv("SESSION_TTL", "720h"), 720*time.Hour),
        DocumentTTL: parseDuration(getEnv("DOCUMENT_TTL", "2h"), 2*time.Hour),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
