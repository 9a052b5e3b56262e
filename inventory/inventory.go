// Package inventory implements the collection-inventory codec: the
// CSV (status, LIDVID) membership list for a PDS4 collection, its
// duplicate/regression-aware merge, and its canonical sorted
// serialization.
package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"pds4delta/ident"
)

// Status is a product's membership status within a collection.
type Status string

const (
	Primary   Status = "P"
	Secondary Status = "S"
)

// InventoryItem pairs a product's current LIDVID with its membership
// status.
type InventoryItem struct {
	LidVid ident.LidVid
	Status Status
}

// CollectionInventory maps a product LID to its current InventoryItem.
// A collection contains at most one version of any given product LID.
type CollectionInventory struct {
	items map[ident.Lid]InventoryItem
}

// New returns an empty CollectionInventory.
func New() *CollectionInventory {
	return &CollectionInventory{items: make(map[ident.Lid]InventoryItem)}
}

// DuplicateProductError reports an attempt to add an item whose VID
// regresses or ties the version already on file for its LID.
type DuplicateProductError struct {
	Lid      ident.Lid
	Existing ident.Vid
	Proposed ident.Vid
}

func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("duplicate product %s: existing vid %s, proposed vid %s", e.Lid, e.Existing, e.Proposed)
}

// AddItem inserts or replaces the entry for item.LidVid.Lid. It fails
// DuplicateProductError if the LID is already present with a VID >=
// item's VID; otherwise the existing entry (if any) is replaced.
func (c *CollectionInventory) AddItem(item InventoryItem) error {
	existing, ok := c.items[item.LidVid.Lid]
	if ok && !existing.LidVid.Vid.Less(item.LidVid.Vid) {
		return &DuplicateProductError{
			Lid:      item.LidVid.Lid,
			Existing: existing.LidVid.Vid,
			Proposed: item.LidVid.Vid,
		}
	}

	c.items[item.LidVid.Lid] = item
	return nil
}

// Items returns every InventoryItem currently present.
func (c *CollectionInventory) Items() []InventoryItem {
	out := make([]InventoryItem, 0, len(c.items))
	for _, item := range c.items {
		out = append(out, item)
	}
	return out
}

// Products returns the set of current LIDVIDs as a map for fast
// membership testing.
func (c *CollectionInventory) Products() map[ident.LidVid]struct{} {
	out := make(map[ident.LidVid]struct{}, len(c.items))
	for _, item := range c.items {
		out[item.LidVid] = struct{}{}
	}
	return out
}

// Len reports the number of products currently tracked.
func (c *CollectionInventory) Len() int {
	return len(c.items)
}

// IngestNewInventory merges other's items into c via AddItem,
// propagating the first failure encountered. The order items are visited
// is stable (sorted by serialized row) so merge failures are
// deterministic.
func (c *CollectionInventory) IngestNewInventory(other *CollectionInventory) error {
	for _, item := range sortedItems(other.Items()) {
		if err := c.AddItem(item); err != nil {
			return err
		}
	}
	return nil
}

func serializeRow(item InventoryItem) string {
	return string(item.Status) + "," + item.LidVid.String()
}

func sortedItems(items []InventoryItem) []InventoryItem {
	sort.Slice(items, func(i, j int) bool {
		return serializeRow(items[i]) < serializeRow(items[j])
	})
	return items
}

// ToCSV serializes the inventory as CRLF-delimited "status,LIDVID" rows,
// sorted ascending as raw strings. The caller appends the trailing CRLF.
func (c *CollectionInventory) ToCSV() string {
	rows := make([]string, 0, len(c.items))
	for _, item := range c.Items() {
		rows = append(rows, serializeRow(item))
	}
	sort.Strings(rows)
	return strings.Join(rows, "\r\n")
}

// FromCSV parses CRLF-delimited rows of "status,LIDVID" into a new
// CollectionInventory.
func FromCSV(text string) (*CollectionInventory, error) {
	inv := New()

	text = strings.TrimRight(text, "\r\n")
	if text == "" {
		return inv, nil
	}

	for _, row := range strings.Split(text, "\r\n") {
		if row == "" {
			continue
		}
		fields := strings.SplitN(row, ",", 2)
		if len(fields) != 2 {
			return nil, errors.Errorf("malformed inventory row %q: expected 2 fields", row)
		}

		status := Status(fields[0])
		if status != Primary && status != Secondary {
			return nil, errors.Errorf("malformed inventory row %q: status must be P or S", row)
		}

		lv, err := ident.ParseLidVid(fields[1])
		if err != nil {
			return nil, errors.Wrapf(err, "malformed inventory row %q", row)
		}

		if err := inv.AddItem(InventoryItem{LidVid: lv, Status: status}); err != nil {
			return nil, err
		}
	}

	return inv, nil
}
