// cmd/server runs the co-located signaling broker + inference engine
// binary: a gin.Engine serving /health, /model-status,
// /initialize-model and the /ws/signal upgrade, backed by a
// signaling.Hub handing process-frame requests to an engine.Dispatcher
// in-process.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/n0remac/detectrtc/internal/engine"
	"github.com/n0remac/detectrtc/internal/httpapi"
	"github.com/n0remac/detectrtc/internal/signaling"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP/websocket listen address")
	modelPath := flag.String("model", os.Getenv("DETECTRTC_MODEL_PATH"), "path to the ONNX detector model")
	scoreThreshold := flag.Float64("score-threshold", engine.DefaultConfig("").ScoreThreshold, "detection score threshold")
	throttleMillis := flag.Int64("throttle-ms", engine.DefaultConfig("").ThrottleMillis, "per-room minimum interval between inference calls")
	flag.Parse()

	if *modelPath == "" {
		log.Fatal("[server] -model (or DETECTRTC_MODEL_PATH) is required")
	}

	cfg := engine.Config{
		ModelPath:      *modelPath,
		ScoreThreshold: *scoreThreshold,
		ThrottleMillis: *throttleMillis,
	}
	dispatcher := engine.NewDispatcher(cfg)
	defer dispatcher.Close()

	hub := signaling.NewHub(dispatcher)
	router := httpapi.NewRouter(dispatcher, hub)

	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	go func() {
		log.Printf("[server] listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[server] listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("[server] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[server] shutdown error: %v", err)
	}
}
