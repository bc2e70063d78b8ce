package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/events"
	"github.com/cuemby/lvs-agent/pkg/ipvs"
	"github.com/cuemby/lvs-agent/pkg/log"
	"github.com/cuemby/lvs-agent/pkg/netns"
	"github.com/cuemby/lvs-agent/pkg/storage"
	"github.com/cuemby/lvs-agent/pkg/types"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// maxManifestSize bounds request bodies
const maxManifestSize = 1 << 20

// TableReader reads a pool's live table
type TableReader interface {
	Snapshot(ctx context.Context, poolID string) ([]ipvs.Service, error)
	Stats(ctx context.Context, poolID string) ([]ipvs.ServiceStats, error)
}

// Publisher receives the lifecycle events caused by a write
type Publisher interface {
	Publish(event *events.Event)
}

// PoolAPI exposes the stored pool configurations and their live tables
// over HTTP. Writes go to the store and are announced as lifecycle events;
// the engine runs when the dispatcher handles them.
type PoolAPI struct {
	store     storage.Store
	table     TableReader
	publisher Publisher
	logger    zerolog.Logger
}

// NewPoolAPI creates the pool endpoints
func NewPoolAPI(store storage.Store, table TableReader, publisher Publisher) *PoolAPI {
	return &PoolAPI{
		store:     store,
		table:     table,
		publisher: publisher,
		logger:    log.WithComponent("api"),
	}
}

// Register mounts the endpoints on hs
func (p *PoolAPI) Register(hs *HealthServer) {
	hs.Handle("GET /pools", http.HandlerFunc(p.listPools))
	hs.Handle("GET /pools/{id}", http.HandlerFunc(p.getPool))
	hs.Handle("PUT /pools/{id}", http.HandlerFunc(p.putPool))
	hs.Handle("DELETE /pools/{id}", http.HandlerFunc(p.deletePool))
	hs.Handle("PUT /pools/{id}/members/{member}", http.HandlerFunc(p.putMember))
	hs.Handle("DELETE /pools/{id}/members/{member}", http.HandlerFunc(p.deleteMember))
	hs.Handle("GET /pools/{id}/table", http.HandlerFunc(p.getTable))
	hs.Handle("GET /pools/{id}/stats", http.HandlerFunc(p.getStats))
	hs.Handle("GET /pools/{id}/health", http.HandlerFunc(p.getHealth))
}

func (p *PoolAPI) listPools(w http.ResponseWriter, r *http.Request) {
	pools, err := p.store.ListPools()
	if err != nil {
		p.fail(w, err)
		return
	}
	ids := make([]string, 0, len(pools))
	for _, cfg := range pools {
		ids = append(ids, cfg.Pool.ID)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"pools": ids})
}

func (p *PoolAPI) getPool(w http.ResponseWriter, r *http.Request) {
	cfg, err := p.store.GetPool(r.PathValue("id"))
	if err != nil {
		p.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// putPool stores a manifest. The body may be YAML or JSON.
func (p *PoolAPI) putPool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var cfg types.LogicalConfig
	if err := decodeBody(r, &cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cfg.Pool.ID == "" {
		cfg.Pool.ID = id
	}
	if cfg.Pool.ID != id {
		http.Error(w, fmt.Sprintf("pool id %q does not match path %q", cfg.Pool.ID, id), http.StatusBadRequest)
		return
	}

	old, err := p.lookup(id)
	if err != nil {
		p.fail(w, err)
		return
	}
	if err := p.store.PutPool(&cfg); err != nil {
		p.fail(w, err)
		return
	}
	p.publish(events.Diff(old, &cfg))

	status := http.StatusOK
	if old == nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, &cfg)
}

func (p *PoolAPI) deletePool(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	old, err := p.store.GetPool(id)
	if err != nil {
		p.fail(w, err)
		return
	}
	if err := p.store.DeletePool(id); err != nil {
		p.fail(w, err)
		return
	}
	p.publish(events.Diff(old, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (p *PoolAPI) putMember(w http.ResponseWriter, r *http.Request) {
	id, memberID := r.PathValue("id"), r.PathValue("member")

	var member types.Member
	if err := decodeBody(r, &member); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	member.ID = memberID
	member.PoolID = id

	old, err := p.store.GetPool(id)
	if err != nil {
		p.fail(w, err)
		return
	}
	if err := p.store.PutMember(member); err != nil {
		p.fail(w, err)
		return
	}
	updated, err := p.store.GetPool(id)
	if err != nil {
		p.fail(w, err)
		return
	}
	p.publish(events.Diff(old, updated))
	writeJSON(w, http.StatusOK, member)
}

func (p *PoolAPI) deleteMember(w http.ResponseWriter, r *http.Request) {
	id, memberID := r.PathValue("id"), r.PathValue("member")

	member, err := p.store.DeleteMember(id, memberID)
	if err != nil {
		p.fail(w, err)
		return
	}
	p.publish([]*events.Event{events.NewMemberEvent(events.EventMemberDeleted, member)})
	w.WriteHeader(http.StatusNoContent)
}

// getTable returns the live table, as YAML with ?format=yaml
func (p *PoolAPI) getTable(w http.ResponseWriter, r *http.Request) {
	services, err := p.table.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		p.fail(w, err)
		return
	}
	if services == nil {
		services = []ipvs.Service{}
	}

	if r.URL.Query().Get("format") == "yaml" {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_ = yaml.NewEncoder(w).Encode(services)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

func (p *PoolAPI) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := p.table.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		p.fail(w, err)
		return
	}
	if stats == nil {
		stats = []ipvs.ServiceStats{}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (p *PoolAPI) getHealth(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := p.store.GetPool(id); err != nil {
		p.fail(w, err)
		return
	}
	health, err := p.store.ListMemberHealth(id)
	if err != nil {
		p.fail(w, err)
		return
	}
	if health == nil {
		health = []types.MemberHealth{}
	}
	writeJSON(w, http.StatusOK, health)
}

// lookup returns the stored pool or nil if there is none
func (p *PoolAPI) lookup(id string) (*types.LogicalConfig, error) {
	cfg, err := p.store.GetPool(id)
	if errors.Is(err, controlplane.ErrPoolNotFound) {
		return nil, nil
	}
	return cfg, err
}

func (p *PoolAPI) publish(evs []*events.Event) {
	if p.publisher == nil {
		return
	}
	for _, e := range evs {
		p.logger.Debug().Str("event", string(e.Type)).Str("pool_id", e.PoolID).Msg("Publishing event")
		p.publisher.Publish(e)
	}
}

func (p *PoolAPI) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var toolErr *netns.ToolError
	switch {
	case errors.Is(err, controlplane.ErrPoolNotFound), errors.Is(err, storage.ErrMemberNotFound):
		status = http.StatusNotFound
	case errors.As(err, &toolErr):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		p.logger.Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), status)
}

func decodeBody(r *http.Request, v interface{}) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxManifestSize))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("empty body")
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse body: %w", err)
	}
	return nil
}
