package protocol

import "fmt"

// Defaults applied when a network distribution is turned into configuration.
const (
	DefaultShelfCode = "SHELF"
	DefaultShelfType = 1
)

// ConfigurationRow is one unit derived from a network distribution. The
// endpoint that answered the query is attached by the caller.
type ConfigurationRow struct {
	Location  string   `json:"location"`
	ShelfCode string   `json:"shelf_code"`
	ShelfType int      `json:"shelf_type"`
	UnitID    int64    `json:"unit_id"`
	NodeID    string   `json:"node_id"`
	ChannelID string   `json:"channel_id"`
	Type      NodeType `json:"type"`
}

// ToConfiguration generates unit rows for every node of a network
// distribution. Locations are L{channel index}{node index}, both zero-padded
// to three digits, and unit ids are sequential from 1.
func ToConfiguration(channels []NetworkChannel, shelfCode string, shelfType int) []ConfigurationRow {
	if shelfCode == "" {
		shelfCode = DefaultShelfCode
	}
	if shelfType == 0 {
		shelfType = DefaultShelfType
	}

	var rows []ConfigurationRow
	var id int64 = 1
	for i, ch := range channels {
		for j, node := range ch.Nodes {
			rows = append(rows, ConfigurationRow{
				Location:  fmt.Sprintf("L%03d%03d", i, j),
				ShelfCode: shelfCode,
				ShelfType: shelfType,
				UnitID:    id,
				NodeID:    node.NodeID,
				ChannelID: ch.Channel,
				Type:      node.Type,
			})
			id++
		}
	}
	return rows
}
