package api

import (
    "net/http"
    "os"

    "intelliload/internal/buildinfo"
)

// DebugJSON reports build info and a redacted view of runtime config.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    pr := s.getPrincipal(r)
    if !pr.IsAdmin() {
        writeProblem(w, http.StatusForbidden, "Forbidden", "admin role required", r.URL.Path)
        return
    }
    out := map[string]any{
        "build": buildinfo.Info(),
        "config": map[string]any{
            "port":               os.Getenv("PORT"),
            "authMode":           os.Getenv("AUTH_MODE"),
            "allowOrigins":       os.Getenv("ALLOW_ORIGINS"),
            "rateRps":            os.Getenv("RATE_RPS"),
            "rateBurst":          os.Getenv("RATE_BURST"),
            "webhookMaxAttempts": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
            "solveTimeBudgetMs":  os.Getenv("SOLVE_TIME_BUDGET_MS"),
            "hasDatabaseUrl":     os.Getenv("DATABASE_URL") != "",
            "hasRedisUrl":        os.Getenv("REDIS_URL") != "",
        },
    }
    writeJSON(w, http.StatusOK, out)
}
