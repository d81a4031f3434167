package api

import (
    "net/http"
    "os"
    "strconv"
    "strings"

    "golang.org/x/time/rate"

    "intelliload/internal/auth"
    "intelliload/internal/store"
    "intelliload/internal/webhooks"
)

type Server struct {
    Store   store.Store
    Pub     *webhooks.Publisher
    Auth    *auth.Verifier
    Broker  EventBroker
    Limiter *rate.Limiter
}

// NewServer creates a Server. If DATABASE_URL is unset, uses in-memory store.
func NewServer() (*Server, error) {
    dsn := os.Getenv("DATABASE_URL")
    var s store.Store
    if strings.TrimSpace(dsn) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(dsn)
        if err != nil {
            return nil, err
        }
        // Run migrations (dev helper)
        if os.Getenv("DB_MIGRATE") != "false" {
            _ = sp.MigrateDir("db/migrations")
        }
        s = sp
    }
    // Broker selection
    var broker EventBroker
    if os.Getenv("REDIS_URL") != "" {
        if rb, err := NewRedisBroker(); err == nil { broker = rb } else { broker = NewBroker() }
    } else {
        broker = NewBroker()
    }
    return &Server{
        Store:   s,
        Pub:     webhooks.NewPublisher(s),
        Auth:    auth.NewVerifierFromEnv(),
        Broker:  broker,
        Limiter: newLimiterFromEnv(),
    }, nil
}

// newLimiterFromEnv builds the solve-endpoint rate limiter. RATE_RPS=0
// disables limiting.
func newLimiterFromEnv() *rate.Limiter {
    rps := 10.0
    if v := os.Getenv("RATE_RPS"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 { rps = f }
    }
    if rps == 0 {
        return nil
    }
    burst := 20
    if v := os.Getenv("RATE_BURST"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 { burst = n }
    }
    return rate.NewLimiter(rate.Limit(rps), burst)
}

// allowSolve applies the rate limit to solve-class endpoints.
func (s *Server) allowSolve(w http.ResponseWriter, r *http.Request) bool {
    if s.Limiter == nil || s.Limiter.Allow() {
        return true
    }
    writeProblem(w, http.StatusTooManyRequests, "Rate limited", "solve request rate exceeded", r.URL.Path)
    return false
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}
