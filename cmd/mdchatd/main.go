// Command mdchatd is the chat server's control plane: load
// configuration, bind one WebTransport listener per configured listen
// address, start the broadcast worker and the admin HTTP surface, and
// run until interrupted.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/time/rate"

	"mdchat/internal/audit"
	"mdchat/internal/broadcast"
	"mdchat/internal/cli"
	"mdchat/internal/codec"
	"mdchat/internal/config"
	"mdchat/internal/httpapi"
	"mdchat/internal/listener"
	"mdchat/internal/msglog"
	"mdchat/internal/registry"
	"mdchat/internal/session"
	"mdchat/internal/transport"
	"mdchat/internal/userdir"
)

func main() {
	if len(os.Args) > 1 && cli.Run(os.Args[1:]) {
		return
	}

	configPath := flag.String("config", "mdchatd.conf", "configuration file path")
	dbPath := flag.String("audit-db", "mdchat-audit.db", "audit trail SQLite database path")
	adminAddr := flag.String("admin-addr", ":8080", "admin/metrics HTTP listen address (empty to disable)")
	wtPath := flag.String("webtransport-path", "/chat", "HTTP path WebTransport sessions upgrade on")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	rateLimit := flag.Float64("rate-limit", 20, "maximum commands per second accepted per session")
	rateBurst := flag.Int("rate-burst", 40, "token bucket burst size for -rate-limit")
	flag.Parse()

	logger := slog.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if len(cfg.Listen) == 0 {
		logger.Error("no listen addresses configured", "path", *configPath)
		os.Exit(2)
	}

	auditLog, err := audit.Open(*dbPath)
	if err != nil {
		logger.Error("failed to open audit database", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	hasher := userdir.NewBcryptHasher()
	users := userdir.New(hasher)
	log := msglog.New()
	reg := registry.New()
	queue := broadcast.NewQueue()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	worker := broadcast.New(queue, log, users, reg, logger)
	workerDone := make(chan struct{})
	go func() {
		worker.Run()
		close(workerDone)
	}()
	go func() {
		<-ctx.Done()
		queue.Close()
	}()

	if *adminAddr != "" {
		admin := httpapi.New(httpapi.Counters{Registry: reg, Log: log})
		go func() {
			if err := admin.Run(ctx, *adminAddr); err != nil {
				logger.Error("admin http server failed", "err", err)
			}
		}()
		logger.Info("admin http server listening", "addr", *adminAddr)
	}

	type serveResult struct {
		addr string
		err  error
	}

	listeners := make([]*transport.Listener, 0, len(cfg.Listen))
	serveErrs := make(chan serveResult, len(cfg.Listen))
	for _, addr := range cfg.Listen {
		tlsConfig, fingerprint, err := transport.GenerateTLSConfig(*certValidity, hostOf(addr))
		if err != nil {
			logger.Error("generate tls config", "addr", addr, "err", err)
			os.Exit(1)
		}
		logger.Info("tls certificate fingerprint", "addr", addr, "fingerprint", fingerprint)

		wt := transport.NewListener(addr, *wtPath, tlsConfig)
		listeners = append(listeners, wt)

		go func(addr string) {
			err := wt.Serve()
			if err != nil {
				logger.Error("webtransport listener failed", "addr", addr, "err", err)
			}
			serveErrs <- serveResult{addr: addr, err: err}
		}(addr)

		l := listener.New(wt, codec.IdentityCipher{}, users, log, reg, cfg.Policy, cfg.Policy, queue, logger, auditLog,
			session.WithRateLimit(rate.Limit(*rateLimit), *rateBurst))
		go func() {
			if err := l.Run(ctx); err != nil {
				logger.Error("accept loop failed", "addr", addr, "err", err)
			}
		}()
		logger.Info("chat listener bound", "addr", addr, "path", *wtPath)
	}

	// A bind failure (port in use, permission denied) surfaces as an
	// immediate Serve() return; give every listener a short window to
	// fail fast before deciding whether any of them actually came up.
	// Individual failures are non-fatal, but if every listener failed
	// to bind there is nothing left to serve.
	failed := 0
	received := 0
	grace := time.After(500 * time.Millisecond)
waitBind:
	for received < len(listeners) {
		select {
		case res := <-serveErrs:
			received++
			if res.err != nil {
				failed++
			}
		case <-grace:
			break waitBind
		}
	}
	if len(listeners) > 0 && failed == len(listeners) {
		logger.Error("no listener could be bound")
		os.Exit(2)
	}

	<-ctx.Done()
	for _, l := range listeners {
		_ = l.Close()
	}
	<-workerDone
}

func hostOf(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}
