package admin

import (
	"encoding/json"
	"net/http"
)

// toolsResponse is section 6's `GET /mcp_tools` response,
// `{tools: {B: [t, ...]}}`.
type toolsResponse struct {
	Tools map[string][]string `json:"tools"`
}

func (rt *routes) listTools(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toolsResponse{Tools: rt.deps.Core.ListToolNames()})
}
