// Package topology models the physical installation: controllers
// (endpoints), shelves and the display units wired behind them.
//
// A unit is addressed on the wire by its node id and channel on a given
// endpoint, and by its location code everywhere else. The topology is
// persisted in SQLite and replaced wholesale, either from a network
// distribution reported by a controller (FromNetwork) or from an xlsx
// workbook (ImportWorkbook).
package topology
