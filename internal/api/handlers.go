package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/manpreetbhatti/focusflow/backend/internal/db"
	"github.com/manpreetbhatti/focusflow/backend/internal/logging"
	"github.com/manpreetbhatti/focusflow/backend/internal/persistence"
	"github.com/manpreetbhatti/focusflow/backend/internal/presence"
	"github.com/manpreetbhatti/focusflow/backend/internal/workspace"
	"github.com/manpreetbhatti/focusflow/backend/internal/ws"
)

const pingTimeout = 2 * time.Second

// Store is the part of the durable store the operational endpoints need
type Store interface {
	Ping(ctx context.Context) error
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Implemented by stores that can enumerate and remove documents (SQLite)
type catalog interface {
	ListWorkspaces(ctx context.Context, limit, offset int) ([]db.Workspace, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) error
}

type API struct {
	hub        *ws.Hub
	registry   *presence.Registry
	workspaces *workspace.Store
	sync       *persistence.Synchronizer
	store      Store
	log        *logrus.Entry
	started    time.Time
}

func New(hub *ws.Hub, registry *presence.Registry, workspaces *workspace.Store, synchronizer *persistence.Synchronizer, store Store) *API {
	return &API{
		hub:        hub,
		registry:   registry,
		workspaces: workspaces,
		sync:       synchronizer,
		store:      store,
		log:        logging.NewLogger("api"),
		started:    time.Now(),
	}
}

// Register adds the operational routes to r
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/health", a.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", a.StatsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/workspaces", a.ListWorkspacesHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/workspaces/{id}", a.GetWorkspaceHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/workspaces/{id}", a.DeleteWorkspaceHandler).Methods(http.MethodDelete)
	r.HandleFunc("/api/workspaces/{id}/flush", a.FlushWorkspaceHandler).Methods(http.MethodPost)
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.WithError(err).Error("Error encoding JSON response")
	}
}

func (a *API) errorResponse(w http.ResponseWriter, status int, message string) {
	a.jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		a.log.WithError(err).Warn("Health check failed")
		a.jsonResponse(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unavailable",
			"error":     err.Error(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":        a.hub.GetRoomCount(),
		"active_clients":      a.hub.GetClientCount(),
		"resident_workspaces": a.workspaces.Len(),
		"dirty_workspaces":    len(a.sync.DirtyIDs()),
		"started":             humanize.Time(a.started),
		"timestamp":           time.Now().UTC().Format(time.RFC3339),
	}

	storeStats, err := a.store.GetStats(r.Context())
	if err != nil {
		a.log.WithError(err).Warn("Failed to read store stats")
	} else {
		stats["stored_workspaces"] = storeStats["workspace_count"]
		if size, ok := storeStats["stored_bytes"].(int64); ok {
			stats["stored_size"] = humanize.Bytes(uint64(size))
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}

type WorkspaceSummary struct {
	ID          string    `json:"id"`
	Size        string    `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ActiveUsers int       `json:"active_users"`
	Resident    bool      `json:"resident"`
}

type WorkspaceResponse struct {
	ID    string                 `json:"id"`
	State map[string]interface{} `json:"state"`
	Users []string               `json:"users"`
	Dirty bool                   `json:"dirty"`
}

func (a *API) ListWorkspacesHandler(w http.ResponseWriter, r *http.Request) {
	cat, ok := a.store.(catalog)
	if !ok {
		a.errorResponse(w, http.StatusNotImplemented, "Store does not support listing")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	stored, err := cat.ListWorkspaces(r.Context(), limit, offset)
	if err != nil {
		a.log.WithError(err).Error("Failed to list workspaces")
		a.errorResponse(w, http.StatusInternalServerError, "Failed to list workspaces")
		return
	}

	active := a.hub.GetActiveRooms()

	response := make([]WorkspaceSummary, len(stored))
	for i, s := range stored {
		_, resident := a.workspaces.Get(s.ID)
		response[i] = WorkspaceSummary{
			ID:          s.ID,
			Size:        humanize.Bytes(uint64(s.Size)),
			CreatedAt:   s.CreatedAt,
			UpdatedAt:   s.UpdatedAt,
			ActiveUsers: active[s.ID],
			Resident:    resident,
		}
	}

	a.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"workspaces": response,
		"limit":      limit,
		"offset":     offset,
	})
}

func (a *API) GetWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	resident, ok := a.workspaces.Get(id)
	if !ok {
		a.errorResponse(w, http.StatusNotFound, "Workspace not loaded")
		return
	}

	users := a.registry.Roster(id).Identities()
	if users == nil {
		users = []string{}
	}

	a.jsonResponse(w, http.StatusOK, WorkspaceResponse{
		ID:    id,
		State: resident.State(),
		Users: users,
		Dirty: a.sync.IsDirty(id),
	})
}

// Only workspaces that are not in memory can be deleted, a resident one
// would be written back by the next flush.
func (a *API) DeleteWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	cat, ok := a.store.(catalog)
	if !ok {
		a.errorResponse(w, http.StatusNotImplemented, "Store does not support deletion")
		return
	}

	err := a.sync.RemoveStored(r.Context(), id, func(ctx context.Context) error {
		return cat.DeleteWorkspace(ctx, id)
	})
	if errors.Is(err, persistence.ErrResident) {
		a.errorResponse(w, http.StatusConflict, "Workspace is loaded")
		return
	}
	if err != nil {
		a.log.WithError(err).WithField("workspace", id).Error("Failed to delete workspace")
		a.errorResponse(w, http.StatusInternalServerError, "Failed to delete workspace")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]string{"message": "Workspace deleted"})
}

func (a *API) FlushWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := a.workspaces.Get(id); !ok {
		a.errorResponse(w, http.StatusNotFound, "Workspace not loaded")
		return
	}

	if err := a.sync.FlushNow(r.Context(), id); err != nil {
		a.errorResponse(w, http.StatusInternalServerError, "Failed to flush workspace")
		return
	}

	a.jsonResponse(w, http.StatusOK, map[string]string{"message": "Workspace flushed"})
}
