package statuscheck

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "strings"
    "time"

    awscfg "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates health checks for external dependencies used by the dashboard.
type Checker struct {
    redis      RedisPinger
    s3Bucket   string
    httpClient *http.Client
    gatewayURL string
    serverKey  string
    backendURL string
}

// Options configures the Checker.
type Options struct {
    Redis      RedisPinger
    S3Bucket   string
    HTTPClient *http.Client
    GatewayURL string
    ServerKey  string
    BackendURL string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses for the dashboard.
type Summary struct {
    Redis   Status `json:"redis"`
    S3      Status `json:"s3"`
    Gateway Status `json:"gateway"`
    Backend Status `json:"backend"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    client := opts.HTTPClient
    if client == nil {
        client = &http.Client{Timeout: 5 * time.Second}
    }
    return &Checker{
        redis:      opts.Redis,
        s3Bucket:   opts.S3Bucket,
        httpClient: client,
        gatewayURL: strings.TrimRight(opts.GatewayURL, "/"),
        serverKey:  strings.TrimSpace(opts.ServerKey),
        backendURL: strings.TrimRight(opts.BackendURL, "/"),
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:   c.checkRedis(ctx),
        S3:      c.checkS3(ctx),
        Gateway: c.checkGateway(ctx),
        Backend: c.checkBackend(ctx),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Message: "client unavailable"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: err.Error()}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3Bucket == "" {
        return Status{OK: false, Message: "Bucket not configured (local storage)"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    cfg, err := awscfg.LoadDefaultConfig(ctx)
    if err != nil {
        return Status{OK: false, Message: err.Error()}
    }
    cli := s3.NewFromConfig(cfg)
    _, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket})
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkGateway(ctx context.Context) Status {
    if c.serverKey == "" {
        return Status{OK: false, Message: "Server key missing"}
    }
    // A status query for a nonexistent order still proves reachability and
    // valid credentials; only 401 means the key is bad.
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.gatewayURL+"/v2/ping-probe/status", nil)
    req.SetBasicAuth(c.serverKey, "")
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer resp.Body.Close()
    if resp.StatusCode == http.StatusUnauthorized {
        return Status{OK: false, Message: "Invalid server key"}
    }
    return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkBackend(ctx context.Context) Status {
    if c.backendURL == "" {
        return Status{OK: false, Message: "Backend URL missing"}
    }
    req, _ := http.NewRequestWithContext(ctx, http.MethodGet, c.backendURL+"/api/printers", nil)
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    defer resp.Body.Close()
    if resp.StatusCode >= 500 {
        return Status{OK: false, Message: fmt.Sprintf("HTTP %d", resp.StatusCode)}
    }
    return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
