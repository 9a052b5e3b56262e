package inventory_test

import (
	"strings"
	"testing"

	"pds4delta/ident"
	"pds4delta/inventory"
)

func mustLidVid(t *testing.T, s string) ident.LidVid {
	t.Helper()
	lv, err := ident.ParseLidVid(s)
	if err != nil {
		t.Fatal(err)
	}
	return lv
}

func TestFromCSVAndToCSV(t *testing.T) {
	csv := "P,urn:p:b:c:x::1.0\r\nP,urn:p:b:c:y::1.0"
	inv, err := inventory.FromCSV(csv)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", inv.Len())
	}

	out := inv.ToCSV()
	rows := strings.Split(out, "\r\n")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %q", len(rows), out)
	}
	if rows[0] > rows[1] {
		t.Errorf("rows not sorted: %q", out)
	}
}

func TestFromCSVMalformedRow(t *testing.T) {
	_, err := inventory.FromCSV("X,urn:p:b:c:x::1.0")
	if err == nil {
		t.Fatal("expected error for bad status")
	}
}

func TestAddItemDuplicateRejectsRegression(t *testing.T) {
	inv := inventory.New()
	if err := inv.AddItem(inventory.InventoryItem{LidVid: mustLidVid(t, "urn:p:b:c:x::1.1"), Status: inventory.Primary}); err != nil {
		t.Fatal(err)
	}

	err := inv.AddItem(inventory.InventoryItem{LidVid: mustLidVid(t, "urn:p:b:c:x::1.0"), Status: inventory.Primary})
	if err == nil {
		t.Fatal("expected DuplicateProductError for a VID regression")
	}

	err = inv.AddItem(inventory.InventoryItem{LidVid: mustLidVid(t, "urn:p:b:c:x::1.1"), Status: inventory.Primary})
	if err == nil {
		t.Fatal("expected DuplicateProductError for an identical VID")
	}
}

func TestAddItemAllowsForwardReplace(t *testing.T) {
	inv := inventory.New()
	if err := inv.AddItem(inventory.InventoryItem{LidVid: mustLidVid(t, "urn:p:b:c:x::1.0"), Status: inventory.Primary}); err != nil {
		t.Fatal(err)
	}
	if err := inv.AddItem(inventory.InventoryItem{LidVid: mustLidVid(t, "urn:p:b:c:x::1.1"), Status: inventory.Primary}); err != nil {
		t.Fatal(err)
	}
	if inv.Len() != 1 {
		t.Fatalf("expected 1 item after replace, got %d", inv.Len())
	}
}

func TestIngestCommutativityUnderDisjointLids(t *testing.T) {
	a, err := inventory.FromCSV("P,urn:p:b:c:x::1.0")
	if err != nil {
		t.Fatal(err)
	}
	b, err := inventory.FromCSV("P,urn:p:b:c:y::1.0")
	if err != nil {
		t.Fatal(err)
	}

	a2, _ := inventory.FromCSV("P,urn:p:b:c:x::1.0")
	b2, _ := inventory.FromCSV("P,urn:p:b:c:y::1.0")

	if err := a.IngestNewInventory(b); err != nil {
		t.Fatal(err)
	}
	if err := b2.IngestNewInventory(a2); err != nil {
		t.Fatal(err)
	}

	if a.ToCSV() != b2.ToCSV() {
		t.Errorf("ingest not commutative under disjoint lids: %q != %q", a.ToCSV(), b2.ToCSV())
	}
}

func TestIngestMonotonicity(t *testing.T) {
	a, _ := inventory.FromCSV("P,urn:p:b:c:x::1.0")
	b, _ := inventory.FromCSV("P,urn:p:b:c:y::1.0")

	beforeX := len(a.Products())
	if err := a.IngestNewInventory(b); err != nil {
		t.Fatal(err)
	}
	if len(a.Products()) < beforeX+1 {
		t.Errorf("expected monotonic growth in products, got %d", len(a.Products()))
	}
}

func TestIngestPropagatesFailure(t *testing.T) {
	a, _ := inventory.FromCSV("P,urn:p:b:c:x::1.1")
	b, _ := inventory.FromCSV("P,urn:p:b:c:x::1.0")

	if err := a.IngestNewInventory(b); err == nil {
		t.Fatal("expected ingest failure on regression")
	}
}

func TestScenario1MinorBumpOneNewProduct(t *testing.T) {
	// The delta collection's inventory carries only the product newly
	// introduced by this delivery; an unchanged product is not restated
	// (restating it byte-identically would trip V4's duplicate-row check
	// -- see DESIGN.md's note on this scenario).
	prev, err := inventory.FromCSV("P,urn:p:b:c:x::1.0")
	if err != nil {
		t.Fatal(err)
	}
	delta, err := inventory.FromCSV("P,urn:p:b:c:y::1.0")
	if err != nil {
		t.Fatal(err)
	}

	merged := inventory.New()
	if err := merged.IngestNewInventory(prev); err != nil {
		t.Fatal(err)
	}
	if err := merged.IngestNewInventory(delta); err != nil {
		t.Fatal(err)
	}

	if merged.Len() != 2 {
		t.Fatalf("expected 2 merged rows, got %d", merged.Len())
	}
}
