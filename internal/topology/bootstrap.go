package topology

import (
	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// FromConfig turns the static endpoints of the ptl config section into
// units. Endpoint and unit ids are numbered from 1 in file order; Save
// replaces them with database ids.
func FromConfig(endpoints []config.EndpointConfig) Units {
	var (
		units Units
		id    int64
	)
	for i, ep := range endpoints {
		endpoint := Endpoint{ID: int64(i + 1), IP: ep.IP, Port: ep.Port}
		for _, u := range ep.Units {
			id++
			typ := protocol.NodeType(u.Type)
			units = append(units, Unit{
				ID:       id,
				Location: u.Location,
				Shelf: Shelf{
					Code:     u.Shelf,
					TypeID:   u.ShelfType,
					TypeCode: ShelfTypeCode(u.ShelfType),
				},
				NodeID:    u.NodeID,
				ChannelID: u.ChannelID,
				Type:      typ,
				TypeName:  typ.Name(),
				Endpoint:  endpoint,
			})
		}
	}
	return units
}
