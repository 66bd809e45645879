package handlers

import (
	"strconv"
	"strings"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
)

// splitPath strips prefix from the request path and returns the remaining
// non-empty segments.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// parseChannelID parses the "{backendID}/{channelID}" segment pair.
func parseChannelID(backendPart, channelPart string) (channel.ID, bool) {
	backendID, err := strconv.Atoi(backendPart)
	if err != nil {
		return channel.ID{}, false
	}
	channelID, err := strconv.Atoi(channelPart)
	if err != nil {
		return channel.ID{}, false
	}
	return channel.ID{BackendID: backendID, ChannelID: channelID}, true
}

// GroupView is the JSON representation of a channel group.
type GroupView struct {
	Name     string `json:"name"`
	Radio    bool   `json:"radio"`
	Kind     string `json:"kind"`
	Position int    `json:"position"`
	Hidden   bool   `json:"hidden"`
	Size     int    `json:"size"`
}

// MemberView is the JSON representation of a group member.
type MemberView struct {
	BackendID     int    `json:"backend_id"`
	ChannelID     int    `json:"channel_id"`
	Name          string `json:"name"`
	Number        string `json:"number"`
	BackendNumber string `json:"backend_number,omitempty"`
	IconPath      string `json:"icon_path,omitempty"`
	Hidden        bool   `json:"hidden"`
	Locked        bool   `json:"locked"`
	EPGEnabled    bool   `json:"epg_enabled"`
}

func groupView(g *group.ChannelGroup) GroupView {
	kind := "user"
	if g.Kind() == group.KindAllChannels {
		kind = "all-channels"
	}
	return GroupView{
		Name:     g.Name(),
		Radio:    g.Path().IsRadio(),
		Kind:     kind,
		Position: g.Position(),
		Hidden:   g.IsHidden(),
		Size:     g.Size(),
	}
}

func memberView(m *group.Member) MemberView {
	ch := m.Channel()
	view := MemberView{
		BackendID:  ch.ID().BackendID,
		ChannelID:  ch.ID().ChannelID,
		Name:       ch.Name(),
		Number:     m.Number().String(),
		IconPath:   ch.IconPath(),
		Hidden:     ch.IsHidden(),
		Locked:     ch.IsLocked(),
		EPGEnabled: ch.EPGEnabled(),
	}
	if m.BackendNumber().IsValid() {
		view.BackendNumber = m.BackendNumber().String()
	}
	return view
}

func memberViews(g *group.ChannelGroup, filter group.Include) []MemberView {
	members := g.Members(filter)
	views := make([]MemberView, len(members))
	for i, m := range members {
		views[i] = memberView(m)
	}
	return views
}
