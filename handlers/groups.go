package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/alorle/pvr-manager/internal/application"
	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/logging"
)

// GroupsHandler serves the /api/groups endpoints.
type GroupsHandler struct {
	deps Dependencies
}

// NewGroupsHandler creates a handler for group management requests.
func NewGroupsHandler(deps Dependencies) *GroupsHandler {
	return &GroupsHandler{deps: deps}
}

// CreateGroupRequest is the body of POST /api/groups.
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// AddMemberRequest is the body of POST /api/groups/{name}/channels.
type AddMemberRequest struct {
	BackendID int `json:"backend_id"`
	ChannelID int `json:"channel_id"`
}

// SetNumberRequest is the body of PATCH /api/groups/{name}/channels/{b}/{c}.
type SetNumberRequest struct {
	Number string `json:"number"`
}

func (h *GroupsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := splitPath(r.URL.Path, "/api/groups")

	switch {
	case len(segments) == 0 && r.Method == http.MethodGet:
		h.handleList(w, r)
	case len(segments) == 0 && r.Method == http.MethodPost:
		h.handleCreate(w, r)
	case len(segments) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, segments[0])
	case len(segments) == 1 && r.Method == http.MethodDelete:
		h.handleDelete(w, r, segments[0])
	case len(segments) == 2 && segments[1] == "channels" && r.Method == http.MethodPost:
		h.handleAddMember(w, r, segments[0])
	case len(segments) == 4 && segments[1] == "channels" && r.Method == http.MethodDelete:
		h.handleRemoveMember(w, r, segments[0], segments[2], segments[3])
	case len(segments) == 4 && segments[1] == "channels" && r.Method == http.MethodPatch:
		h.handleSetNumber(w, r, segments[0], segments[2], segments[3])
	default:
		logging.WriteJSONError(w, h.deps.Logger, "Not found", http.StatusNotFound, map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
	}
}

func (h *GroupsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	m := h.deps.manager(r)

	groups := m.Groups()
	views := make([]GroupView, len(groups))
	for i, g := range groups {
		views[i] = groupView(g)
	}

	logging.WriteJSONSuccess(w, h.deps.Logger, views, map[string]interface{}{
		"path":  r.URL.Path,
		"count": len(views),
	})
}

func (h *GroupsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid request body", http.StatusBadRequest, map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		logging.WriteJSONError(w, h.deps.Logger, "Group name is required", http.StatusBadRequest, map[string]interface{}{
			"path": r.URL.Path,
		})
		return
	}

	g, err := h.deps.manager(r).CreateGroup(r.Context(), req.Name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, application.ErrGroupExists):
			status = http.StatusConflict
		case errors.Is(err, application.ErrAllChannelsGroup):
			status = http.StatusBadRequest
		}
		logging.WriteJSONError(w, h.deps.Logger, err.Error(), status, map[string]interface{}{
			"group": req.Name,
		})
		return
	}

	w.WriteHeader(http.StatusCreated)
	logging.WriteJSONSuccess(w, h.deps.Logger, groupView(g), map[string]interface{}{
		"group": g.Name(),
	})
}

func (h *GroupsHandler) handleGet(w http.ResponseWriter, r *http.Request, name string) {
	g, ok := h.lookupGroup(w, r, name)
	if !ok {
		return
	}

	filter := group.IncludeVisible
	if r.URL.Query().Get("hidden") == "true" {
		filter = group.IncludeAll
	}

	response := struct {
		GroupView
		Members []MemberView `json:"members"`
	}{
		GroupView: groupView(g),
		Members:   memberViews(g, filter),
	}

	logging.WriteJSONSuccess(w, h.deps.Logger, response, map[string]interface{}{
		"group": name,
	})
}

func (h *GroupsHandler) handleDelete(w http.ResponseWriter, r *http.Request, name string) {
	err := h.deps.manager(r).DeleteGroup(r.Context(), name)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, group.ErrGroupNotFound):
			status = http.StatusNotFound
		case errors.Is(err, application.ErrAllChannelsGroup):
			status = http.StatusBadRequest
		}
		logging.WriteJSONError(w, h.deps.Logger, err.Error(), status, map[string]interface{}{
			"group": name,
		})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupsHandler) handleAddMember(w http.ResponseWriter, r *http.Request, name string) {
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid request body", http.StatusBadRequest, map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return
	}

	m := h.deps.manager(r)
	g, ok := h.lookupGroup(w, r, name)
	if !ok {
		return
	}

	ch := m.AllChannels().ChannelByID(channel.ID{BackendID: req.BackendID, ChannelID: req.ChannelID})
	if ch == nil {
		logging.WriteJSONError(w, h.deps.Logger, "Channel not found", http.StatusNotFound, map[string]interface{}{
			"group":      name,
			"backend_id": req.BackendID,
			"channel_id": req.ChannelID,
		})
		return
	}

	if !g.AppendToGroup(ch) {
		logging.WriteJSONError(w, h.deps.Logger, "Channel is already a group member", http.StatusConflict, map[string]interface{}{
			"group":   name,
			"channel": ch.Name(),
		})
		return
	}

	if err := g.Persist(r.Context()); err != nil {
		h.deps.Logger.Warn("Failed to persist group after adding a channel", map[string]interface{}{
			"group": name,
			"error": err.Error(),
		})
	}

	w.WriteHeader(http.StatusCreated)
	logging.WriteJSONSuccess(w, h.deps.Logger, memberViews(g, group.IncludeAll), map[string]interface{}{
		"group":   name,
		"channel": ch.Name(),
	})
}

func (h *GroupsHandler) handleRemoveMember(w http.ResponseWriter, r *http.Request, name, backendPart, channelPart string) {
	g, ok := h.lookupGroup(w, r, name)
	if !ok {
		return
	}
	ch, ok := h.lookupMember(w, g, backendPart, channelPart)
	if !ok {
		return
	}

	if g.Kind() == group.KindAllChannels {
		logging.WriteJSONError(w, h.deps.Logger, "Cannot remove channels from the all channels group", http.StatusBadRequest, map[string]interface{}{
			"group": name,
		})
		return
	}

	g.RemoveFromGroup(ch)
	if err := g.Persist(r.Context()); err != nil {
		h.deps.Logger.Warn("Failed to persist group after removing a channel", map[string]interface{}{
			"group": name,
			"error": err.Error(),
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *GroupsHandler) handleSetNumber(w http.ResponseWriter, r *http.Request, name, backendPart, channelPart string) {
	var req SetNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid request body", http.StatusBadRequest, map[string]interface{}{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		return
	}

	number, err := channel.ParseNumber(req.Number)
	if err != nil {
		logging.WriteJSONError(w, h.deps.Logger, err.Error(), http.StatusBadRequest, map[string]interface{}{
			"group":  name,
			"number": req.Number,
		})
		return
	}

	g, ok := h.lookupGroup(w, r, name)
	if !ok {
		return
	}
	ch, ok := h.lookupMember(w, g, backendPart, channelPart)
	if !ok {
		return
	}

	g.SetChannelNumber(ch, number)
	if err := g.Persist(r.Context()); err != nil {
		h.deps.Logger.Warn("Failed to persist group after renumbering", map[string]interface{}{
			"group": name,
			"error": err.Error(),
		})
	}

	logging.WriteJSONSuccess(w, h.deps.Logger, memberViews(g, group.IncludeAll), map[string]interface{}{
		"group":   name,
		"channel": ch.Name(),
		"number":  number.String(),
	})
}

// lookupGroup resolves a group by name, treating the all channels name as
// the canonical group. Writes a 404 when the group does not exist.
func (h *GroupsHandler) lookupGroup(w http.ResponseWriter, r *http.Request, name string) (*group.ChannelGroup, bool) {
	m := h.deps.manager(r)
	if name == group.AllChannelsGroupName {
		return m.AllChannels(), true
	}
	g, ok := m.GetGroup(name)
	if !ok {
		logging.WriteJSONError(w, h.deps.Logger, "Group not found", http.StatusNotFound, map[string]interface{}{
			"group": name,
		})
		return nil, false
	}
	return g, true
}

// lookupMember resolves a member channel of g by its id path segments.
func (h *GroupsHandler) lookupMember(w http.ResponseWriter, g *group.ChannelGroup, backendPart, channelPart string) (*channel.Channel, bool) {
	id, ok := parseChannelID(backendPart, channelPart)
	if !ok {
		logging.WriteJSONError(w, h.deps.Logger, "Invalid channel id", http.StatusBadRequest, map[string]interface{}{
			"group": g.Name(),
		})
		return nil, false
	}

	m, ok := g.MemberByID(id)
	if !ok {
		logging.WriteJSONError(w, h.deps.Logger, "Channel is not a group member", http.StatusNotFound, map[string]interface{}{
			"group":      g.Name(),
			"backend_id": id.BackendID,
			"channel_id": id.ChannelID,
		})
		return nil, false
	}
	return m.Channel(), true
}
