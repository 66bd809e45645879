package lineup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alorle/pvr-manager/internal/channel"
)

// Entry is one channel row of a backend lineup.
type Entry struct {
	// ChannelID is the backend-unique channel identifier (tvg-id).
	ChannelID int
	// Name is the display name after the last comma of the EXTINF line.
	Name string
	// Number is the backend channel number (tvg-chno), unset when absent.
	Number channel.Number
	// Logo is the channel icon URL (tvg-logo).
	Logo string
	// Groups lists the backend group titles the channel belongs to
	// (group-title, ";" separated).
	Groups []string
	// Radio marks radio channels (radio="true").
	Radio bool
}

// InGroup reports whether the entry belongs to the named backend group.
func (e Entry) InGroup(name string) bool {
	for _, g := range e.Groups {
		if g == name {
			return true
		}
	}
	return false
}

var attrRegex = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// Parse extracts lineup entries from M3U content. Rows without a numeric
// tvg-id are skipped: without a stable backend identifier a channel cannot
// be tracked across refreshes.
func Parse(content []byte) []Entry {
	lines := strings.Split(string(content), "\n")
	var entries []Entry

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "#EXTINF:") {
			continue
		}

		attrs := parseAttributes(line)

		id, err := strconv.Atoi(attrs["tvg-id"])
		if err != nil || id <= 0 {
			continue
		}

		entry := Entry{
			ChannelID: id,
			Name:      displayName(line),
			Logo:      attrs["tvg-logo"],
			Radio:     attrs["radio"] == "true",
		}
		if chno := attrs["tvg-chno"]; chno != "" {
			if number, err := channel.ParseNumber(chno); err == nil {
				entry.Number = number
			}
		}
		if groups := attrs["group-title"]; groups != "" {
			for _, g := range strings.Split(groups, ";") {
				if g = strings.TrimSpace(g); g != "" {
					entry.Groups = append(entry.Groups, g)
				}
			}
		}

		entries = append(entries, entry)
	}

	return entries
}

func parseAttributes(extinf string) map[string]string {
	attrs := make(map[string]string)
	for _, match := range attrRegex.FindAllStringSubmatch(extinf, -1) {
		attrs[match[1]] = match[2]
	}
	return attrs
}

// displayName returns everything after the last comma of the EXTINF line.
func displayName(extinf string) string {
	commaIdx := strings.LastIndex(extinf, ",")
	if commaIdx == -1 {
		return ""
	}
	return strings.TrimSpace(extinf[commaIdx+1:])
}
