package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/open-mcp/vmcp/pkg/logger"
	"github.com/open-mcp/vmcp/pkg/vmcp/backend"
	"github.com/open-mcp/vmcp/pkg/vmcp/config"
	"github.com/open-mcp/vmcp/pkg/vmcp/discovery"
)

// serverListResponse is section 6's `GET /mcp_servers` response,
// `{active_servers: [...]}`. Each entry additionally carries the
// backend's lifecycle state, following the same additive health-detail
// convention as GET /health so a caller never has to poll twice to
// tell pending from live.
type serverListResponse struct {
	ActiveServers []serverEntry `json:"active_servers"`
}

type serverEntry struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func (rt *routes) listServers(w http.ResponseWriter, _ *http.Request) {
	doc := rt.deps.Core.Document()
	names := doc.ServerOrder()
	resp := serverListResponse{ActiveServers: make([]serverEntry, 0, len(names))}
	for _, name := range names {
		resp.ActiveServers = append(resp.ActiveServers, serverEntry{
			Name:  name,
			State: string(rt.deps.Manager.State(name)),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// addServerRequest is section 6's `{name, ...BackendConfig}` body for
// `POST /mcp_servers`.
type addServerRequest struct {
	Name string `json:"name"`

	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`

	AlwaysOn           bool `json:"always_on,omitempty"`
	IdleTimeoutMinutes int  `json:"idle_timeout_minutes,omitempty"`
}

// addServer declares a new backend and persists it immediately (the
// "lazy" add of section 6), then runs one discovery pass against it so
// that register_backend's list_changed notification (section 4.5, S6)
// fires synchronously with the admission request rather than waiting
// for the next periodic sweep. A backend that fails to open is still
// added and stays pending; it is never silently dropped.
func (rt *routes) addServer(w http.ResponseWriter, r *http.Request) {
	var req addServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if (req.Command == "") == (req.URL == "") {
		http.Error(w, "exactly one of command or url must be set", http.StatusBadRequest)
		return
	}

	cfg := &config.BackendConfig{
		Command:            req.Command,
		Args:               req.Args,
		Env:                req.Env,
		URL:                req.URL,
		Type:               req.Type,
		AlwaysOn:           req.AlwaysOn,
		IdleTimeoutMinutes: req.IdleTimeoutMinutes,
		Tools:              map[string]*config.ToolEntry{},
	}

	if err := rt.deps.Core.AddDeclaredBackend(req.Name, cfg); err != nil {
		logger.Errorw("admin: failed to persist new backend", "backend", req.Name, "error", err)
		http.Error(w, "failed to persist backend", http.StatusInternalServerError)
		return
	}
	rt.deps.Manager.Register(backend.FromBackendConfig(req.Name, cfg))

	doc := rt.deps.Core.Document()
	result := discovery.DiscoverOne(r.Context(), rt.deps.Manager, doc, req.Name)
	if result.Err != nil {
		logger.Warnw("admin: discovery against newly added backend failed", "backend", req.Name, "error", result.Err)
	} else {
		rt.deps.Core.RegisterBackend(req.Name, result.Tools, result.Prompts, result.Resources, result.Caps)
	}
	if err := rt.deps.Store.Save(doc); err != nil {
		logger.Warnw("admin: failed to persist discovered backend state", "backend", req.Name, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(serverEntry{Name: req.Name, State: string(rt.deps.Manager.State(req.Name))})
}

// removeServer closes the backend's session, removes it from the live
// map and the document, and emits list_changed for whichever
// capability classes it had advertised (section 4.5: "unregister_backend").
func (rt *routes) removeServer(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !rt.deps.Manager.Declared(name) {
		http.Error(w, "backend not found", http.StatusNotFound)
		return
	}
	if err := rt.deps.Core.UnregisterBackend(name, true); err != nil {
		logger.Errorw("admin: failed to remove backend", "backend", name, "error", err)
		http.Error(w, "failed to remove backend", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
