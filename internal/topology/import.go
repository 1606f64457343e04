package topology

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nerrad567/ptl-core/internal/ptl/protocol"
)

// ImportSheet is the preferred worksheet name; the first sheet is used when
// the workbook has no sheet by that name.
const ImportSheet = "units"

// Column headers recognised by ImportWorkbook, case-insensitive.
const (
	colLocation  = "location"
	colShelf     = "shelf"
	colShelfType = "shelf_type"
	colNode      = "node"
	colChannel   = "channel"
	colType      = "type"
	colIP        = "ip"
	colPort      = "port"
)

var requiredColumns = []string{colLocation, colNode, colChannel, colIP, colPort}

// ImportWorkbook reads a topology from an xlsx workbook.
//
// The first row is a header naming the columns (location, shelf, shelf_type,
// node, channel, type, ip, port); shelf, shelf_type and type are optional.
// Node ids are zero-padded to three digits and type accepts either the
// numeric code or the device name (e.g. "DPA1"). Unit ids are assigned in
// row order starting at 1.
//
// Parameters:
//   - r: The workbook contents
//
// Returns:
//   - Units: The parsed, validated units
//   - error: ErrImport wrapping the first structural problem, or the
//     validation errors of the parsed units
func ImportWorkbook(r io.Reader) (Units, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook: %v", ErrImport, err)
	}
	defer f.Close() //nolint:errcheck // read-only workbook

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrImport)
	}
	sheet := sheets[0]
	for _, s := range sheets {
		if strings.EqualFold(s, ImportSheet) {
			sheet = s
			break
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %s: %v", ErrImport, sheet, err)
	}
	if len(rows) < 2 { //nolint:mnd // header plus at least one unit
		return nil, fmt.Errorf("%w: sheet %s has no units", ErrImport, sheet)
	}

	cols := make(map[string]int)
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrImport, c)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var units Units
	for n, row := range rows[1:] {
		if cell(row, colLocation) == "" {
			continue
		}
		line := n + 2 //nolint:mnd // 1-based, after the header

		port, err := strconv.Atoi(cell(row, colPort))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: port %q", ErrImport, line, cell(row, colPort))
		}
		nodeType, err := parseNodeType(cell(row, colType))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrImport, line, err)
		}
		shelfType := protocol.DefaultShelfType
		if s := cell(row, colShelfType); s != "" {
			if shelfType, err = strconv.Atoi(s); err != nil || ShelfTypeCode(shelfType) == "" {
				return nil, fmt.Errorf("%w: row %d: shelf type %q", ErrImport, line, s)
			}
		}
		shelfCode := cell(row, colShelf)
		if shelfCode == "" {
			shelfCode = protocol.DefaultShelfCode
		}

		units = append(units, Unit{
			ID:       int64(len(units) + 1),
			Location: cell(row, colLocation),
			Shelf: Shelf{
				Code:     shelfCode,
				TypeID:   shelfType,
				TypeCode: ShelfTypeCode(shelfType),
			},
			NodeID:    padNodeID(cell(row, colNode)),
			ChannelID: cell(row, colChannel),
			Type:      nodeType,
			TypeName:  nodeType.Name(),
			Endpoint:  Endpoint{IP: cell(row, colIP), Port: port},
		})
	}

	if err := Validate(units); err != nil {
		return nil, err
	}
	return units, nil
}

// padNodeID turns "5" into "005"; anything non-numeric is returned as-is and
// left for validation to reject.
func padNodeID(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return s
	}
	return fmt.Sprintf("%03d", n)
}

func parseNodeType(s string) (protocol.NodeType, error) {
	if s == "" {
		return protocol.NodeTypeDPA1, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		t := protocol.NodeType(n)
		if t.Name() == "" {
			return 0, fmt.Errorf("unknown node type %d", n)
		}
		return t, nil
	}
	for t := protocol.NodeTypeNotConfig; t <= protocol.NodeTypeDPA2; t++ {
		if strings.EqualFold(t.Name(), s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown node type %q", s)
}
