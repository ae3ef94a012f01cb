// Command cloud-server boots the cloud side of spec §4.9: the duplex
// sync ingest/dispatch endpoint edges connect out to, plus the thin
// `/api/cert/issue`, `/pki/root_ca`, `/api/auth/login` stubs spec §6
// names (full catalog/employee CRUD is a Non-goal — these exist only so
// an edge can be exercised end to end).
package main

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/crabpos/edge/internal/cloudsync"
	"github.com/crabpos/edge/internal/config"
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
	log.Info().Str("version", version).Msg("cloud-server starting")

	syncServer := cloudsync.NewServer(newMemoryCursorStore(), newMemoryCommandQueue(), newMemoryResourceSink(), newMemoryLiveSink())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Post("/api/auth/login", handleLoginStub)
	r.Post("/api/cert/issue", handleCertIssueStub)
	r.Get("/pki/root_ca", handleRootCAStub)
	r.Get("/api/edge/ws", handleEdgeWS(syncServer))

	log.Info().Str("addr", cfg.HTTPListenAddr).Msg("cloud-server listening")
	if err := http.ListenAndServe(cfg.HTTPListenAddr, r); err != nil {
		log.Fatal().Err(err).Msg("cloud-server HTTP listener failed")
	}
}

// handleEdgeWS upgrades GET /api/edge/ws to the duplex sync channel (spec
// §4.9, §6). A production deployment terminates mTLS in front of this
// process (or via ListenAndServeTLS with ClientAuth configured) and
// forwards the verified peer certificate's CommonName/OU here; this
// stand-in takes the identity from the X-Edge-Server-ID, X-Tenant-ID and
// X-Device-ID headers as given, in every build, and only rejects a
// request that carries no edge server id.
func handleEdgeWS(s *cloudsync.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := cloudsync.EdgeIdentity{
			EdgeServerID: r.Header.Get("X-Edge-Server-ID"),
			TenantID:     r.Header.Get("X-Tenant-ID"),
			DeviceID:     r.Header.Get("X-Device-ID"),
		}
		if identity.EdgeServerID == "" {
			http.Error(w, "missing edge identity, requires mTLS-terminated ingress", http.StatusUnauthorized)
			return
		}
		if err := s.HandleUpgrade(w, r, identity); err != nil {
			log.Error().Err(err).Str("edge_server_id", identity.EdgeServerID).Msg("cloud-server: ws upgrade failed")
		}
	}
}

// handleLoginStub exists only so `cmd/edge-server`'s activation flow has
// something to call end to end (spec §6 "non-core, mentioned for
// completeness"). Full tenant auth is a Non-goal.
func handleLoginStub(w http.ResponseWriter, r *http.Request) {
	log.Warn().Msg("cloud-server: /api/auth/login is a stub, not wired to a user store")
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not implemented"})
}

// handleCertIssueStub exists for the same reason: spec §6 names
// `POST /api/cert/issue` as the endpoint `cmd/edge-server`'s activation
// flow calls before it has its own certificates, but the CA/hardware-ID
// bookkeeping behind it is cloud-side state this module doesn't persist
// (Non-goal: no cloud-side analytics/catalog beyond the sync ingest path).
func handleCertIssueStub(w http.ResponseWriter, r *http.Request) {
	log.Warn().Msg("cloud-server: /api/cert/issue is a stub, not wired to a CA")
	writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not implemented"})
}

func handleRootCAStub(w http.ResponseWriter, r *http.Request) {
	path := os.Getenv("ROOT_CA_PATH")
	if path == "" {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "ROOT_CA_PATH not configured"})
		return
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("cloud-server: failed to read root CA")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read root CA"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"root_ca_cert": string(pem)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
