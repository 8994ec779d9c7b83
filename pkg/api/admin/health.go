package admin

import (
	"encoding/json"
	"net/http"

	"github.com/open-mcp/vmcp/pkg/vmcp"
)

// healthResponse is section 6's `{status, connected, pending}`, with
// the additional per-backend `backends` detail SUPPLEMENTAL FEATURES
// asks for (grounded in the teacher's health-check conventions of
// reporting per-resource state alongside an aggregate summary).
type healthResponse struct {
	Status    string            `json:"status"`
	Connected int               `json:"connected"`
	Pending   int               `json:"pending"`
	Backends  map[string]string `json:"backends"`
}

func (rt *routes) getHealth(w http.ResponseWriter, _ *http.Request) {
	names := rt.deps.Manager.Names()
	resp := healthResponse{Status: "ok", Backends: make(map[string]string, len(names))}
	for _, name := range names {
		state := rt.deps.Manager.State(name)
		resp.Backends[name] = string(state)
		switch state {
		case vmcp.BackendLive:
			resp.Connected++
		case vmcp.BackendPending, vmcp.BackendConnecting:
			resp.Pending++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
