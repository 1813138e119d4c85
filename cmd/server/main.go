package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"github.com/inkwell-cms/inkwell/pkg/inkwell/api"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/authz"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/config"
	"github.com/inkwell-cms/inkwell/pkg/inkwell/ratelimit"
)

func main() {
	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := httplog.NewLogger("inkwell", httplog.Options{
		JSON:            cfg.Environment == "production",
		LogLevel:        slog.LevelInfo,
		Concise:         cfg.Environment != "production",
		RequestHeaders:  false,
		QuietDownRoutes: []string{"/health"},
		QuietDownPeriod: 10 * time.Second,
	})

	svc, err := cfg.BuildService(logger.Logger)
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}

	signer, err := cfg.BuildSigner()
	if err != nil {
		logger.Error("failed to build unlock signer", "error", err)
		os.Exit(1)
	}

	limiter := cfg.BuildLimiter(logger.Logger)
	limiter.Start()
	defer limiter.Stop()

	gate, err := authz.NewGate(headerResolver, rolePermissions)
	if err != nil {
		logger.Error("failed to build authz gate", "error", err)
		os.Exit(1)
	}

	adminHandler := api.NewAdminHandler(svc)
	publicHandler := api.NewPublicHandler(svc, signer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/cms", func(r chi.Router) {
		r.Use(gate.RequireAuthor())
		r.Use(limitByMethod(limiter, ratelimit.AdminRead, ratelimit.AdminWrite))
		r.Mount("/", adminHandler.Routes(gate.RequirePublisher()))
	})

	r.Route("/public", func(r chi.Router) {
		r.Use(limitByMethod(limiter, ratelimit.PublicRead, ratelimit.PublicUnlock))
		r.Mount("/", publicHandler.Routes())
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if limiter.Healthy() {
			w.Write([]byte("OK"))
			return
		}
		w.Write([]byte("OK (rate limiter degraded)"))
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: r,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "database", cfg.DatabaseType)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exiting")
}

// limitByMethod throttles reads and writes with different rules on the same
// route tree.
func limitByMethod(limiter *ratelimit.Limiter, read, write ratelimit.Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		readLimited := api.RateLimit(limiter, read)(next)
		writeLimited := api.RateLimit(limiter, write)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				readLimited.ServeHTTP(w, r)
				return
			}
			writeLimited.ServeHTTP(w, r)
		})
	}
}

// headerResolver trusts identity headers set by the deployment's auth proxy.
// X-User-UID carries the caller's uid, X-User-Roles a comma-separated role
// list. Requests without a uid are anonymous.
func headerResolver(r *http.Request) (*authz.Actor, error) {
	uid := r.Header.Get("X-User-UID")
	if uid == "" {
		return nil, nil
	}
	var roles []string
	if raw := r.Header.Get("X-User-Roles"); raw != "" {
		for _, role := range strings.Split(raw, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}
	return &authz.Actor{UID: uid, Roles: roles}, nil
}

// rolePermissions maps coarse roles onto content permissions. Publishers can
// do everything authors can.
func rolePermissions(permission string, roles []string) bool {
	for _, role := range roles {
		switch role {
		case "publisher", "admin":
			return true
		case "author":
			if permission == authz.PermissionAuthor {
				return true
			}
		}
	}
	return false
}
