package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
)

// ChannelsHandler serves the /api/channels endpoints.
type ChannelsHandler struct {
	deps Dependencies
}

// NewChannelsHandler creates a handler for channel requests.
func NewChannelsHandler(deps Dependencies) *ChannelsHandler {
	return &ChannelsHandler{deps: deps}
}

// UpdateChannelRequest is the body of PATCH /api/channels/{b}/{c}. Nil
// fields keep the channel's current value.
type UpdateChannelRequest struct {
	Name       *string `json:"name,omitempty"`
	IconPath   *string `json:"icon_path,omitempty"`
	Hidden     *bool   `json:"hidden,omitempty"`
	Locked     *bool   `json:"locked,omitempty"`
	EPGEnabled *bool   `json:"epg_enabled,omitempty"`
	EPGScraper *string `json:"epg_scraper,omitempty"`
}

func (h *ChannelsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path, "/api/channels")

	switch {
	case len(segments) == 0 && r.Method == http.MethodGet:
		h.handleList(w, r)
	case len(segments) == 2 && r.Method == http.MethodPatch:
		h.handleUpdate(w, r, segments[0], segments[1])
	default:
		logging.WriteJSONError(w, h.deps.Logger, "Not found", http.StatusNotFound, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
}

// handleList returns every channel of the all channels group. Hidden
// channels are included with ?hidden=true.
func (h *ChannelsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	m := h.deps.manager(r)

	filter := group.IncludeVisible
	if r.URL.Query().Get("hidden") == "true" {
		filter = group.IncludeAll
	}

	views := memberViews(m.AllChannels(), filter)
	logging.WriteJSONSuccess(w, h.deps.Logger, views, map[string]interface{}{
		"path":  r.URL.Path,
		"count": len(views),
	})
}

func (h *ChannelsHandler) handleUpdate(w http.ResponseWriter, r *http.Request, backendPart, channelPart string) {
	id, ok := parseChannelID(backendPart, channelPart)
	if !ok {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid channel id", http.StatusBadRequest, map[string]interface{}{
			"path": r.URL.Path,
		})
		return
	}

	var req UpdateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid request body", http.StatusBadRequest, map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return
	}

	m := h.deps.manager(r)
	ch := m.AllChannels().ChannelByID(id)
	if ch == nil {
		logging.WriteJSONError(w, h.deps.Logger, "Channel not found", http.StatusNotFound, map[string]interface{}{
			"backend_id": id.BackendID,
			"channel_id": id.ChannelID,
		})
		return
	}

	upd := updateFrom(ch, req)
	if !m.UpdateChannel(id, upd) {
		logging.WriteJSONError(w, h.deps.Logger, "Channel not found", http.StatusNotFound, map[string]interface{}{
			"backend_id": id.BackendID,
			"channel_id": id.ChannelID,
		})
		return
	}

	if err := m.AllChannels().Persist(r.Context()); err != nil {
		h.deps.Logger.Warn("Failed to persist channel update", map[string]interface{}{
			"channel": ch.Name(),
			"error":   err.Error(),
		})
	}

	logging.WriteJSONSuccess(w, h.deps.Logger, channelDetail(ch), map[string]interface{}{
		"channel": ch.Name(),
	})
}

// updateFrom builds a full channel update, keeping current values for
// fields the request leaves out.
func updateFrom(ch *channel.Channel, req UpdateChannelRequest) group.ChannelUpdate {
	upd := group.ChannelUpdate{
		Name:        ch.Name(),
		IconPath:    ch.IconPath(),
		UserSetIcon: ch.IsUserSetIcon(),
		Hidden:      ch.IsHidden(),
		Locked:      ch.IsLocked(),
		EPGEnabled:  ch.EPGEnabled(),
		EPGScraper:  ch.EPGScraper(),
	}
	if req.Name != nil {
		upd.Name = *req.Name
	}
	if req.IconPath != nil {
		upd.IconPath = *req.IconPath
		upd.UserSetIcon = true
	}
	if req.Hidden != nil {
		upd.Hidden = *req.Hidden
	}
	if req.Locked != nil {
		upd.Locked = *req.Locked
	}
	if req.EPGEnabled != nil {
		upd.EPGEnabled = *req.EPGEnabled
	}
	if req.EPGScraper != nil {
		upd.EPGScraper = *req.EPGScraper
	}
	return upd
}

// ChannelDetail is the JSON representation of a channel outside of a
// group context.
type ChannelDetail struct {
	BackendID  int    `json:"backend_id"`
	ChannelID  int    `json:"channel_id"`
	Name       string `json:"name"`
	Radio      bool   `json:"radio"`
	IconPath   string `json:"icon_path,omitempty"`
	Hidden     bool   `json:"hidden"`
	Locked     bool   `json:"locked"`
	EPGEnabled bool   `json:"epg_enabled"`
	EPGScraper string `json:"epg_scraper,omitempty"`
}

func channelDetail(ch *channel.Channel) ChannelDetail {
	return ChannelDetail{
		BackendID:  ch.ID().BackendID,
		ChannelID:  ch.ID().ChannelID,
		Name:       ch.Name(),
		Radio:      ch.IsRadio(),
		IconPath:   ch.IconPath(),
		Hidden:     ch.IsHidden(),
		Locked:     ch.IsLocked(),
		EPGEnabled: ch.EPGEnabled(),
		EPGScraper: ch.EPGScraper(),
	}
}
