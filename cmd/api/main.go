package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"talentgate.io/internal/access"
	"talentgate.io/internal/httpapi"
	"talentgate.io/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store access.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("TALENTGATE_PG_DSN"); dsn != "" {
		pg, err := access.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pg.Close()
		store = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		// Dev mode only: nothing survives a restart.
		store = access.NewInMemory()
	}

	var opts []access.Option
	if raw := strings.TrimSpace(os.Getenv("TALENTGATE_BOT_SIGNATURES")); raw != "" {
		opts = append(opts, access.WithBotSignatures(strings.Split(raw, ",")))
	}
	if ttl, err := time.ParseDuration(os.Getenv("TALENTGATE_TOKEN_TTL")); err == nil && ttl > 0 {
		opts = append(opts, access.WithTokenTTL(ttl))
	}
	svc := access.NewService(store, opts...)

	api := httpapi.New(svc, probe, version)

	addr := os.Getenv("TALENTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting talentgate-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
