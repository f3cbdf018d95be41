package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/speedframe/speedframe/api"
	"github.com/speedframe/speedframe/internal/config"
	"github.com/speedframe/speedframe/internal/session"
	"github.com/speedframe/speedframe/internal/storage/sqlite"
	"github.com/speedframe/speedframe/internal/track"
	"github.com/speedframe/speedframe/internal/version"
	"github.com/speedframe/speedframe/internal/vision"
)

var (
	listen     = flag.String("listen", "", "Listen address (overrides SPEEDFRAME_LISTEN)")
	dbPath     = flag.String("db", "", "Path to the runs database (overrides SPEEDFRAME_DB)")
	configPath = flag.String("config", "", "Path to tuning JSON (optional)")
)

func main() {
	flag.Parse()
	log.Printf("speedframe %s", version.String())

	svc := config.LoadService()
	if *listen != "" {
		svc.ListenAddr = *listen
	}
	if *dbPath != "" {
		svc.DBPath = *dbPath
	}

	tuning := config.EmptyTuning()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuning(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	store, err := sqlite.Open(svc.DBPath)
	if err != nil {
		log.Fatalf("failed to open runs database: %v", err)
	}
	defer store.Close()

	sessions := session.NewManager(session.Params{
		ModelSize:       tuning.GetModelSize(),
		MinDeltaSeconds: tuning.GetMinDeltaSeconds(),
		MaxDeltaSeconds: tuning.GetMaxDeltaSeconds(),
		Estimator: track.Params{
			ProcessNoise:     tuning.GetProcessNoise(),
			MeasurementNoise: tuning.GetMeasurementNoise(),
		},
		Policy: vision.SelectTopConfidence,
	})

	srv := &http.Server{
		Addr:    svc.ListenAddr,
		Handler: api.NewServer(sessions, store).ServeMux(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", svc.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	wg.Wait()
}
