package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	"github.com/oklog/run"
	"github.com/redis/go-redis/v9"
	"github.com/sableauth/interactd/account"
	"github.com/sableauth/interactd/engine"
	"github.com/sableauth/interactd/grants"
	"github.com/sableauth/interactd/websession"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

func serveCommand(app *kingpin.Application) (cmd *kingpin.CmdClause, runner func(context.Context, logrus.FieldLogger) error) {
	serve := app.Command("serve", "Run the interaction service")

	addr := serve.Flag("addr", "Address to listen on").Envar("ADDR").Default("127.0.0.1:3000").String()
	engineKind := serve.Flag("engine", "Engine store backend").Envar("ENGINE").Default("memory").Enum("memory", "redis")
	redisAddr := serve.Flag("redis-addr", "Redis address for the redis engine store").Envar("REDIS_ADDR").Default("127.0.0.1:6379").String()
	interactionTTL := serve.Flag("interaction-ttl", "How long the engine keeps an interaction").Envar("INTERACTION_TTL").Default("1h").Duration()

	sessionHashKey := serve.Flag("session-hash-key", "Key for session cookie authentication, 32 or 64 bytes").Envar("SESSION_HASH_KEY").String()
	sessionBlockKey := serve.Flag("session-block-key", "Key for session cookie encryption, 16/24/32 bytes").Envar("SESSION_BLOCK_KEY").String()
	sessionValidity := serve.Flag("session-validity", "How long a login marker allows prompt reuse").Envar("SESSION_VALIDITY").Default("24h").Duration()

	syncSecret := serve.Flag("sync-secret", "Shared secret for session sync tokens").Envar("SYNC_SECRET").Required().String()

	clientsPath := serve.Flag("clients", "Path to YAML client registry").Envar("CLIENTS_PATH").String()
	accountsPath := serve.Flag("accounts", "Path to YAML account table").Envar("ACCOUNTS_PATH").String()

	return serve, func(ctx context.Context, l logrus.FieldLogger) error {
		accounts, err := buildAccounts(*accountsPath)
		if err != nil {
			return err
		}
		registry, err := buildClients(*clientsPath)
		if err != nil {
			return err
		}

		var eng engine.Engine
		switch *engineKind {
		case "redis":
			rs := engine.NewRedisStore(redis.NewClient(&redis.Options{Addr: *redisAddr}), *interactionTTL, 0)
			if err := rs.Ping(ctx); err != nil {
				return fmt.Errorf("connecting to redis at %s: %w", *redisAddr, err)
			}
			eng = rs
		default:
			eng = engine.NewMemory(&engineAccounts{store: accounts})
		}

		hashKey, blockKey, err := sessionKeys(l, *sessionHashKey, *sessionBlockKey)
		if err != nil {
			return err
		}

		srv := &interactionServer{
			eng:        eng,
			accounts:   accounts,
			grantmgr:   grants.NewManager(eng),
			websess:    websession.NewManager(hashKey, blockKey, *sessionValidity),
			clients:    registry,
			syncSecret: []byte(*syncSecret),
			eh:         &httpErrHandler{},
		}

		m := newMetrics()

		r := chi.NewRouter()
		r.Method(http.MethodGet, "/interaction/{uid}", m.instrument("interaction", http.HandlerFunc(srv.handleInteraction)))
		r.Method(http.MethodPost, "/interaction/{uid}/login", m.instrument("interaction_login", http.HandlerFunc(srv.handleLogin)))
		r.Method(http.MethodPost, "/auth/syncUserSession", m.instrument("session_sync", http.HandlerFunc(srv.handleSessionSync)))
		r.Method(http.MethodGet, "/healthz", http.HandlerFunc(srv.handleHealthz))
		r.Method(http.MethodGet, "/metrics", m.handler())

		hs := &http.Server{
			Addr:    *addr,
			Handler: baseMiddleware(r, l),
		}

		var g run.Group

		g.Add(run.SignalHandler(ctx, os.Interrupt))

		g.Add(func() error {
			l.WithField("addr", *addr).Info("server listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}, func(error) {
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = hs.Shutdown(sctx)
		})

		err = g.Run()
		var se run.SignalError
		if errors.As(err, &se) {
			l.WithField("signal", se.Signal).Info("shutting down")
			return nil
		}
		return err
	}
}

func buildAccounts(path string) (account.Store, error) {
	if path == "" {
		return account.NewStaticStore(account.DefaultAccounts()...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening accounts file: %w", err)
	}
	defer f.Close()
	st, err := account.LoadStaticStore(f)
	if err != nil {
		return nil, fmt.Errorf("loading accounts from %s: %w", path, err)
	}
	return st, nil
}

func buildClients(path string) (*clientRegistry, error) {
	if path == "" {
		return newClientRegistry(defaultClients())
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening clients file: %w", err)
	}
	defer f.Close()
	reg, err := loadClientRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("loading clients from %s: %w", path, err)
	}
	return reg, nil
}

// sessionKeys returns the cookie keys, generating ephemeral ones when not
// configured. Generated keys mean markers don't survive a restart.
func sessionKeys(l logrus.FieldLogger, hash, block string) ([]byte, []byte, error) {
	var hashKey []byte
	switch len(hash) {
	case 0:
		l.Warn("no session-hash-key configured, session markers will not survive restarts")
		hashKey = securecookie.GenerateRandomKey(64)
	case 32, 64:
		hashKey = []byte(hash)
	default:
		return nil, nil, fmt.Errorf("session-hash-key must be 32 or 64 bytes, got %d", len(hash))
	}

	var blockKey []byte
	switch len(block) {
	case 0:
		blockKey = securecookie.GenerateRandomKey(32)
	case 16, 24, 32:
		blockKey = []byte(block)
	default:
		return nil, nil, fmt.Errorf("session-block-key must be 16, 24 or 32 bytes, got %d", len(block))
	}

	return hashKey, blockKey, nil
}
