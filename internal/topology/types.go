package topology

import (
	"net"
	"strconv"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// Shelf types.
const (
	ShelfTypePickToLight      = 1
	ShelfTypePutToLight       = 2
	ShelfTypePickPutByProduct = 3
	ShelfTypePickPutByOrder   = 4
)

var shelfTypeCodes = map[int]string{
	ShelfTypePickToLight:      "pick-to-light",
	ShelfTypePutToLight:       "put-to-light",
	ShelfTypePickPutByProduct: "pick-to-light + PT by product",
	ShelfTypePickPutByOrder:   "pick-to-light + PT by order",
}

// ShelfTypeCode returns the code of a shelf type, or "" if unknown.
func ShelfTypeCode(typeID int) string {
	return shelfTypeCodes[typeID]
}

// Endpoint is a controller reachable over TCP.
type Endpoint struct {
	ID   int64  `json:"id"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// Addr returns "ip:port", the key links are deduplicated by.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.IP, strconv.Itoa(e.Port))
}

// Shelf groups units physically.
type Shelf struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	TypeID   int    `json:"type_id"`
	TypeCode string `json:"type_code"`
}

// Unit is one display/button device, addressed by node, channel and endpoint.
type Unit struct {
	ID        int64             `json:"id"`
	Location  string            `json:"location"`
	Shelf     Shelf             `json:"shelf"`
	NodeID    string            `json:"node_id"`
	ChannelID string            `json:"channel_id"`
	Type      protocol.NodeType `json:"type"`
	TypeName  string            `json:"type_name"`
	Endpoint  Endpoint          `json:"endpoint"`
}

// IsZone reports whether the unit can show zone prompts.
func (u Unit) IsZone() bool { return u.Type.IsZone() }

// IsInteractive reports whether the unit has a light and a confirm key.
func (u Unit) IsInteractive() bool { return u.Type.IsInteractive() }

// Units is a snapshot of the configured units.
type Units []Unit

// ByID returns the unit with the given id.
func (us Units) ByID(id int64) (Unit, bool) {
	for _, u := range us {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// ByLocation returns the unit at the given location code.
func (us Units) ByLocation(code string) (Unit, bool) {
	for _, u := range us {
		if u.Location == code {
			return u, true
		}
	}
	return Unit{}, false
}

// ByAddress returns the unit wired as nodeID on channelID of the endpoint.
func (us Units) ByAddress(nodeID, channelID string, endpointID int64) (Unit, bool) {
	for _, u := range us {
		if u.NodeID == nodeID && u.ChannelID == channelID && u.Endpoint.ID == endpointID {
			return u, true
		}
	}
	return Unit{}, false
}

// Zone returns the first zone-capable unit.
func (us Units) Zone() (Unit, bool) {
	for _, u := range us {
		if u.IsZone() {
			return u, true
		}
	}
	return Unit{}, false
}

// Interactive returns the units that have a light and a confirm key.
func (us Units) Interactive() Units {
	out := make(Units, 0, len(us))
	for _, u := range us {
		if u.IsInteractive() {
			out = append(out, u)
		}
	}
	return out
}

// Endpoints returns the distinct endpoints, deduplicated by address, in
// first-seen order.
func (us Units) Endpoints() []Endpoint {
	seen := make(map[string]bool)
	var out []Endpoint
	for _, u := range us {
		addr := u.Endpoint.Addr()
		if seen[addr] {
			continue
		}
		seen[addr] = true
		out = append(out, u.Endpoint)
	}
	return out
}

// FromNetwork turns a network distribution reported by ep into units.
func FromNetwork(ep Endpoint, channels []protocol.NetworkChannel, shelfCode string, shelfType int) Units {
	rows := protocol.ToConfiguration(channels, shelfCode, shelfType)
	units := make(Units, 0, len(rows))
	for _, r := range rows {
		units = append(units, Unit{
			ID:       r.UnitID,
			Location: r.Location,
			Shelf: Shelf{
				Code:     r.ShelfCode,
				TypeID:   r.ShelfType,
				TypeCode: ShelfTypeCode(r.ShelfType),
			},
			NodeID:    r.NodeID,
			ChannelID: r.ChannelID,
			Type:      r.Type,
			TypeName:  r.Type.Name(),
			Endpoint:  ep,
		})
	}
	return units
}
