// Command edge-server boots the per-restaurant edge node: the order
// engine, its background archive worker, the mTLS terminal/KDS bus, and
// the duplex cloud sync client. Follows the teacher's cmd/polybot/main.go
// shape — load env, build the logger, wire subsystems top-down, block on
// a signal, shut down in reverse order.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/crabpos/edge/internal/archive"
	"github.com/crabpos/edge/internal/bus"
	"github.com/crabpos/edge/internal/cloudsync"
	"github.com/crabpos/edge/internal/config"
	"github.com/crabpos/edge/internal/credential"
	"github.com/crabpos/edge/internal/ordersmgr"
	"github.com/crabpos/edge/internal/orderpb"
	"github.com/crabpos/edge/internal/storage"
	"github.com/crabpos/edge/internal/telemetry"
)

const version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	telemetry.Setup(cfg.Debug)
	log.Info().Str("version", version).Str("work_dir", cfg.WorkDir).Msg("edge-server starting")

	wasDirty, err := telemetry.AcquireAuditLock(cfg.WorkDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to acquire audit lock")
	}

	certSvc := credential.NewCertService(cfg.WorkDir)
	credStore := credential.NewStore(cfg.WorkDir)

	var cred *credential.Credential
	if credStore.Exists() {
		cred, err = credStore.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load credential")
		}
	}

	if !certSvc.HasCertificates() {
		if cfg.Debug {
			log.Warn().Msg("no certificates present, running without mTLS bus/cloud sync (debug only)")
		} else {
			log.Fatal().Msg("no certificates present in work_dir/certs — activate this edge via AUTH_SERVER_URL before starting in production")
		}
	} else if err := certSvc.SelfCheck(cred); err != nil {
		log.Fatal().Err(err).Msg("certificate self-check failed, refusing to start")
	}

	store, err := storage.Open(filepath.Join(cfg.WorkDir, "orders.redb"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open order store")
	}
	defer store.Close()

	archiveStore, err := archive.Open(filepath.Join(cfg.WorkDir, "archive.sqlite"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open archive store")
	}

	messageBus := bus.New(nil)
	manager := ordersmgr.New(store, busBroadcaster{messageBus})

	if err := manager.Recover(func(string) ([]orderpb.PriceRule, error) { return nil, nil }); err != nil {
		log.Fatal().Err(err).Msg("failed to recover in-flight orders")
	}

	worker := archive.NewWorker(store, archiveStore, int64(cfg.Archive.Concurrency))
	ctx, cancel := context.WithCancel(context.Background())
	go worker.Run(ctx)

	if wasDirty {
		log.Warn().Msg("previous shutdown was not clean, archive worker will recover dead letters and rescan on its first pass")
	}

	var busServer *bus.Server
	tlsConfig, err := certSvc.LoadTLSConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to build TLS config, bus server disabled")
	} else if tlsConfig != nil {
		busServer, err = bus.NewServer(cfg.BusListenAddr, tlsConfig, messageBus)
		if err != nil {
			log.Error().Err(err).Msg("failed to start bus server")
		} else {
			go func() {
				if err := busServer.Serve(ctx); err != nil {
					log.Error().Err(err).Msg("bus server stopped")
				}
			}()
			log.Info().Str("addr", busServer.Addr().String()).Msg("bus server listening")
		}
	}

	var cloudClient *cloudsync.Client
	if cfg.CloudWSURL != "" && tlsConfig != nil {
		cloudClient = cloudsync.NewClient(cfg.CloudWSURL, tlsConfig, handleCloudRPC(manager), handleCloudCommand(manager))
		cloudClient.Start()
		log.Info().Str("url", cfg.CloudWSURL).Msg("cloud sync client started")
	}

	log.Info().Msg("edge-server ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()
	if cloudClient != nil {
		cloudClient.Stop()
	}

	if err := telemetry.ReleaseAuditLock(cfg.WorkDir); err != nil {
		log.Error().Err(err).Msg("failed to release audit lock")
		os.Exit(1)
	}

	log.Info().Msg("goodbye")
}

// busBroadcaster adapts *bus.MessageBus to ordersmgr.Broadcaster,
// wrapping each committed order event as an EventOrderEvent BusMessage
// (spec §4.4 step 7, §4.8 event types).
type busBroadcaster struct {
	bus *bus.MessageBus
}

func (b busBroadcaster) Broadcast(events []*orderpb.OrderEvent) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Error().Err(err).Str("order_id", ev.OrderID).Msg("failed to encode order event for bus broadcast")
			continue
		}
		b.bus.Broadcast(bus.NewMessage(bus.EventOrderEvent, payload))
	}
}

// handleCloudRPC answers cloud-initiated RPCs (catalog provisioning,
// health probes). Catalog/product RPCs are out of scope (spec §1
// Non-goals: no HTTP/CRUD catalog handlers); no RPC is served here, so
// every request, a ping included, is answered as not implemented and the
// order manager is not consulted.
func handleCloudRPC(manager *ordersmgr.Manager) cloudsync.RpcHandler {
	_ = manager
	return func(ctx context.Context, id string, payload json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":false,"error":"rpc not implemented on this edge"}`), nil
	}
}

// handleCloudCommand executes an at-least-once cloud command against the
// local order manager by decoding its payload as an OrderCommand.
func handleCloudCommand(manager *ordersmgr.Manager) cloudsync.CommandHandler {
	return func(ctx context.Context, cmd cloudsync.CloudCommand) cloudsync.CommandResult {
		var orderCmd orderpb.OrderCommand
		if err := json.Unmarshal(cmd.Payload, &orderCmd); err != nil {
			return cloudsync.CommandResult{CommandID: cmd.ID, Success: false, Error: err.Error()}
		}
		result, err := manager.ExecuteCommand(&orderCmd)
		if err != nil {
			return cloudsync.CommandResult{CommandID: cmd.ID, Success: false, Error: err.Error()}
		}
		data, _ := json.Marshal(result)
		return cloudsync.CommandResult{CommandID: cmd.ID, Success: true, Data: data}
	}
}
