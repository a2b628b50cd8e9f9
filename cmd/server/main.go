// Package main provides the FarmNexus backend server.
// PWA clients communicate via REST/WebSocket; edits made offline are
// queued locally and reconciled with the remote API by the sync engine.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/kurniadi/farmnexus/cmd/server/handlers"
	"github.com/kurniadi/farmnexus/internal/db"
	"github.com/kurniadi/farmnexus/internal/logging"
	"github.com/kurniadi/farmnexus/internal/queue"
	"github.com/kurniadi/farmnexus/internal/store"
	syncpkg "github.com/kurniadi/farmnexus/internal/sync"
	"github.com/kurniadi/farmnexus/internal/sync/conflict"
	"github.com/kurniadi/farmnexus/internal/sync/remote"
	"github.com/kurniadi/farmnexus/internal/sync/scheduler"
)

// domainTables are the collections the sync core manages. Business
// schemas inside the payloads are the API layer's concern.
var domainTables = []string{
	"farms",
	"crops",
	"livestock",
	"inventory_items",
	"transactions",
	"employees",
}

func main() {
	logging.Init(os.Stdout, logging.DefaultLevel())

	dataDir := envOr("DB_PATH", "./data")
	port := envOr("PORT", "8090")
	apiURL := envOr("SYNC_API_URL", "http://localhost:8080")
	apiToken := os.Getenv("SYNC_API_TOKEN")

	database, err := db.Open(dataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	localStore := store.New(database)
	for _, table := range domainTables {
		if _, err := localStore.RegisterTable(table); err != nil {
			log.Fatalf("Failed to register table %s: %v", table, err)
		}
	}

	mutationQueue := queue.New(database)
	editor := store.NewEditor(localStore, mutationQueue)

	remoteAPI := remote.NewClient(apiURL, apiToken, &http.Client{Timeout: 30 * time.Second})
	monitor := scheduler.NewMonitor()
	engine := syncpkg.NewOrchestrator(localStore, mutationQueue, remoteAPI,
		conflict.NewResolver(conflict.ServerWins()), monitor)

	hub := NewWSHub()
	unsubscribe := engine.AddListener(hub.BroadcastSyncResult)
	defer unsubscribe()

	ctx := context.Background()
	sched := scheduler.New(engine, monitor, schedulerConfig(), hub.BroadcastPendingCount)
	sched.Start(ctx)
	defer sched.Stop()

	syncHandler := handlers.NewSyncHandler(engine)
	recordsHandler := handlers.NewRecordsHandler(localStore, editor)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"farmnexus"}`))
	})
	mux.HandleFunc("/api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("/api/sync/now", syncHandler.TriggerSync)
	mux.Handle("/api/records/", recordsHandler)
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	logging.Info("FarmNexus server starting", map[string]interface{}{
		"port":     port,
		"data_dir": dataDir,
		"api_url":  apiURL,
	})

	log.Fatal(http.ListenAndServe(":"+port, mux))
}

func schedulerConfig() *scheduler.Config {
	config := scheduler.DefaultConfig()
	if raw := os.Getenv("SYNC_INTERVAL"); raw != "" {
		if interval, err := time.ParseDuration(raw); err == nil {
			config.SyncInterval = interval
		}
	}
	return config
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
