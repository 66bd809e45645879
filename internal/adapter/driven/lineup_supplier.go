package driven

import (
	"context"
	"fmt"

	"github.com/alorle/pvr-manager/internal/channel"
	"github.com/alorle/pvr-manager/internal/group"
	"github.com/alorle/pvr-manager/lineup"
)

// NewLineupSupplier builds a member supplier that serves group fetches from
// the M3U lineup a backend publishes at url. For the all channels group
// every lineup entry of the matching medium is reported; for user groups
// only entries carrying the group's name in their group-title.
func NewLineupSupplier(backendID int, url string, client *lineup.Client) MemberSupplier {
	return func(ctx context.Context, path group.Path, target *group.ChannelGroup) error {
		entries, err := client.Fetch(ctx, url)
		if err != nil {
			return fmt.Errorf("fetching lineup for backend %d: %w", backendID, err)
		}

		order := 0
		for _, e := range entries {
			if e.Radio != path.IsRadio() {
				continue
			}
			if target.Kind() == group.KindUser && !e.InGroup(path.Name()) {
				continue
			}

			ch, err := channel.New(channel.ID{BackendID: backendID, ChannelID: e.ChannelID}, e.Name, e.Radio)
			if err != nil {
				// Nameless lineup rows are unusable, skip them.
				continue
			}
			if e.Logo != "" {
				ch.SetIconPath(e.Logo, false)
			}

			target.AddBackendMember(ch, channel.Number{}, e.Number, order)
			order++
		}
		return nil
	}
}
