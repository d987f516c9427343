package traits

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/plantfate/simerr"
)

// ID indexes a species in a Table.
type ID int

// Table is an append-only arena of species traits. Once frozen, entries can
// only be read, and reads return copies.
type Table struct {
	items  []Traits
	frozen bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add validates and stores traits, returning their ID.
func (t *Table) Add(tr Traits) (ID, error) {
	if t.frozen {
		return -1, fmt.Errorf("adding %q to a frozen trait table: %w", tr.Name, simerr.ErrPrecondition)
	}
	if err := tr.Validate(); err != nil {
		return -1, err
	}
	t.items = append(t.items, tr)
	return ID(len(t.items) - 1), nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() {
	t.frozen = true
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen
}

// Get returns a copy of the traits stored under id.
func (t *Table) Get(id ID) Traits {
	return t.items[id]
}

// Len returns the number of species in the table.
func (t *Table) Len() int {
	return len(t.items)
}

// ReadCSV reads a trait table with the header
// species,lma,wood_density,hmat,p50_xylem[,zeta].
func ReadCSV(path string) ([]Traits, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trait table: %w: %w", simerr.ErrConfig, err)
	}
	defer f.Close()

	var rows []Traits
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing trait table %s: %w: %w", path, simerr.ErrConfig, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("trait table %s has no rows: %w", path, simerr.ErrConfig)
	}
	return rows, nil
}
