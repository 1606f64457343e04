package topology

import (
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

func TestFromNetwork(t *testing.T) {
	ep := Endpoint{ID: 3, IP: "192.168.1.50", Port: 3000}
	channels := []protocol.NetworkChannel{
		{Channel: "1", NumNodes: 2, Nodes: []protocol.NetworkNode{
			{NodeID: "001", Type: protocol.NodeTypeDPA1},
			{NodeID: "002", Type: protocol.NodeTypeDPW1},
		}},
		{Channel: "2", NumNodes: 1, Nodes: []protocol.NetworkNode{
			{NodeID: "010", Type: protocol.NodeTypeDPAZ1},
		}},
	}

	units := FromNetwork(ep, channels, "", 0)
	if len(units) != 3 {
		t.Fatalf("FromNetwork() = %d units, want 3", len(units))
	}
	for _, u := range units {
		if u.Endpoint != ep {
			t.Errorf("unit %s endpoint = %+v", u.Location, u.Endpoint)
		}
		if u.Shelf.TypeCode != "pick-to-light" {
			t.Errorf("unit %s shelf = %+v", u.Location, u.Shelf)
		}
	}
	if err := Validate(units); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	if got := len(units.Interactive()); got != 2 {
		t.Errorf("Interactive() = %d units, want 2", got)
	}
	zone, ok := units.Zone()
	if !ok || zone.NodeID != "010" || zone.ChannelID != "2" {
		t.Errorf("Zone() = %+v, %v", zone, ok)
	}
	if u, ok := units.ByID(2); !ok || u.NodeID != "002" {
		t.Errorf("ByID(2) = %+v, %v", u, ok)
	}
	if _, ok := units.ByAddress("001", "1", 99); ok {
		t.Error("ByAddress() matched a unit on another endpoint")
	}
}

func TestValidateUnit(t *testing.T) {
	valid := Unit{Location: "A-01", NodeID: "255", ChannelID: "2",
		Endpoint: Endpoint{IP: "10.0.0.1", Port: 3000}}

	tests := []struct {
		name   string
		modify func(*Unit)
	}{
		{"empty location", func(u *Unit) { u.Location = " " }},
		{"long location", func(u *Unit) { u.Location = strings.Repeat("x", 51) }},
		{"node 256", func(u *Unit) { u.NodeID = "256" }},
		{"node 000", func(u *Unit) { u.NodeID = "000" }},
		{"unpadded node", func(u *Unit) { u.NodeID = "5" }},
		{"channel 3", func(u *Unit) { u.ChannelID = "3" }},
		{"no ip", func(u *Unit) { u.Endpoint.IP = "" }},
		{"port 0", func(u *Unit) { u.Endpoint.Port = 0 }},
	}

	if err := ValidateUnit(valid); err != nil {
		t.Fatalf("ValidateUnit(valid) error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := valid
			tt.modify(&u)
			if err := ValidateUnit(u); !errors.Is(err, ErrInvalidUnit) {
				t.Errorf("ValidateUnit() error = %v, want ErrInvalidUnit", err)
			}
		})
	}
}

func TestValidateDuplicates(t *testing.T) {
	ep := Endpoint{IP: "10.0.0.1", Port: 3000}
	units := Units{
		{Location: "A", NodeID: "001", ChannelID: "1", Endpoint: ep},
		{Location: "B", NodeID: "001", ChannelID: "1", Endpoint: ep},
		{Location: "A", NodeID: "002", ChannelID: "1", Endpoint: ep},
	}
	err := Validate(units)
	if !errors.Is(err, ErrDuplicateUnit) {
		t.Fatalf("Validate() error = %v, want ErrDuplicateUnit", err)
	}
	if !strings.Contains(err.Error(), "address") || !strings.Contains(err.Error(), "location A") {
		t.Errorf("Validate() should report both duplicates, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	units := FromConfig([]config.EndpointConfig{
		{IP: "10.0.0.1", Port: 16, Units: []config.UnitConfig{
			{Location: "A-01", Shelf: "S1", ShelfType: ShelfTypePickToLight, NodeID: "001", ChannelID: "1", Type: int(protocol.NodeTypeDPA1)},
			{Location: "A-02", Shelf: "S1", ShelfType: ShelfTypePickToLight, NodeID: "002", ChannelID: "1", Type: int(protocol.NodeTypeDPA1)},
		}},
		{IP: "10.0.0.2", Port: 16, Units: []config.UnitConfig{
			{Location: "ZONE", NodeID: "010", ChannelID: "2", Type: int(protocol.NodeTypeDPAZ1)},
		}},
	})

	if len(units) != 3 {
		t.Fatalf("FromConfig() = %d units, want 3", len(units))
	}
	if err := Validate(units); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if units[2].ID != 3 || units[2].Endpoint.ID != 2 || units[2].Endpoint.Addr() != "10.0.0.2:16" {
		t.Errorf("third unit = %+v", units[2])
	}
	if units[0].Shelf.TypeCode != "pick-to-light" {
		t.Errorf("shelf type code = %q", units[0].Shelf.TypeCode)
	}
	if !units[2].IsZone() {
		t.Error("ZONE unit is not a zone")
	}
}
