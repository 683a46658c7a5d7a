package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-api/access"
	"kanban-api/api"
	"kanban-api/dispatch"
	"kanban-api/service"
	"kanban-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing storage config")
	}
	tables := storage.TableNames{
		Users:            envString("USERS_TABLE", "users"),
		Workspaces:       envString("WORKSPACES_TABLE", "workspaces"),
		WorkspaceMembers: envString("WORKSPACE_MEMBERS_TABLE", "workspacemembers"),
		Boards:           envString("BOARDS_TABLE", "boards"),
		BoardMembers:     envString("BOARD_MEMBERS_TABLE", "boardmembers"),
		Lists:            envString("LISTS_TABLE", "lists"),
		Cards:            envString("CARDS_TABLE", "cards"),
	}
	store, err := storage.New(connStr, tables)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	rc := redis.NewClient(redisOptions())
	cache := storage.NewCache(store, rc, envDuration("CACHE_TTL", 5*time.Minute))
	deduper := api.NewRedisDeduper(rc, envDuration("DEDUPER_TTL", 24*time.Hour))

	logger := log.New()

	var audit *storage.AuditTrail
	if queueName := os.Getenv("AUDIT_QUEUE"); queueName != "" {
		audit, err = storage.NewAuditTrail(connStr, queueName,
			envInt("AUDIT_WORKERS", 4),
			envInt("AUDIT_BUFFER", 1024),
			envDuration("AUDIT_TIMEOUT", 30*time.Second),
			logger)
		if err != nil {
			log.Fatalf("audit queue: %v", err)
		}
		defer audit.Close()
	}

	var auth *api.Auth
	if strings.EqualFold(os.Getenv("LOCAL_AUTH_MODE"), "hs256") {
		auth = api.NewAuth(nil, os.Getenv("JWT_AUDIENCE"), os.Getenv("JWT_ISSUER"))
	} else {
		jwtAudience := os.Getenv("OIDC_AUDIENCE")
		oidcDomain := os.Getenv("OIDC_DOMAIN")
		if jwtAudience == "" || oidcDomain == "" {
			log.Fatal("missing OIDC config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", oidcDomain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+oidcDomain+"/")
	}

	dispatcher := dispatch.New(rc, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx)

	var auditor service.Auditor
	if audit != nil {
		auditor = audit
	}
	coordinator := service.New(cache, access.New(cache), dispatcher, auditor, logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, coordinator, auth, deduper, dispatcher, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions parses REDIS_CONNECTION_STRING, accepting either a redis URL
// or the comma-separated host,key=value form Azure hands out.
func redisOptions() *redis.Options {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	opts, err := redis.ParseURL(redisConn)
	if err == nil {
		return opts
	}
	parts := strings.Split(redisConn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func envString(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return n
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %q", name, v)
	}
	return d
}
