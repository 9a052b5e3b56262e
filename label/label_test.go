package label_test

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"

	"pds4delta/ident"
	"pds4delta/label"
)

const bundleXML = `<?xml version="1.0" encoding="UTF-8"?>
<Product_Bundle xmlns="http://pds.nasa.gov/pds4/pds/v1">
	<Identification_Area>
		<logical_identifier>urn:nasa:pds:demo</logical_identifier>
		<version_id>1.1</version_id>
		<Modification_History>
			<Modification_Detail>
				<version_id>1.0</version_id>
				<modification_date>2020-01-01</modification_date>
				<description>initial</description>
			</Modification_Detail>
			<Modification_Detail>
				<version_id>1.1</version_id>
				<modification_date>2020-02-01</modification_date>
				<description>update</description>
			</Modification_Detail>
		</Modification_History>
	</Identification_Area>
	<Bundle_Member_Entry>
		<lidvid_reference>urn:nasa:pds:demo:collection::1.1</lidvid_reference>
		<member_status>Primary</member_status>
		<reference_type>bundle_has_collection</reference_type>
	</Bundle_Member_Entry>
	<Bundle_Member_Entry>
		<lid_reference>urn:nasa:pds:demo:othercollection</lid_reference>
		<member_status>Primary</member_status>
		<reference_type>bundle_has_collection</reference_type>
	</Bundle_Member_Entry>
</Product_Bundle>`

const collectionXML = `<?xml version="1.0" encoding="UTF-8"?>
<Product_Collection xmlns="http://pds.nasa.gov/pds4/pds/v1">
	<Identification_Area>
		<logical_identifier>urn:nasa:pds:demo:collection</logical_identifier>
		<version_id>1.1</version_id>
		<Modification_History>
			<Modification_Detail>
				<version_id>1.1</version_id>
				<modification_date>2020-02-01</modification_date>
				<description>update</description>
			</Modification_Detail>
		</Modification_History>
	</Identification_Area>
	<File_Area_Inventory>
		<File>
			<file_name>collection_demo_inventory.csv</file_name>
		</File>
		<pds:records>2</pds:records>
		<pds:file_size>42</pds:file_size>
		<pds:md5_checksum>deadbeef</pds:md5_checksum>
	</File_Area_Inventory>
</Product_Collection>`

const unknownXML = `<Weird_Root xmlns="http://pds.nasa.gov/pds4/pds/v1"></Weird_Root>`

func TestDecodeBundle(t *testing.T) {
	pl, checksum, err := label.Decode(strings.NewReader(bundleXML))
	if err != nil {
		t.Fatal(err)
	}

	if pl.Kind != label.KindBundle {
		t.Errorf("expected KindBundle, got %v", pl.Kind)
	}
	if pl.IdentificationArea.LidVid.Lid.Bundle != "demo" {
		t.Errorf("unexpected lid: %+v", pl.IdentificationArea.LidVid.Lid)
	}
	expectedVid, err := ident.ParseVid("1.1")
	if err != nil {
		t.Fatal(err)
	}
	if !pl.IdentificationArea.LidVid.Vid.Equal(expectedVid) {
		t.Errorf("unexpected vid: %v", pl.IdentificationArea.LidVid.Vid)
	}
	if pl.IdentificationArea.ModificationHistory == nil || len(pl.IdentificationArea.ModificationHistory.Details) != 2 {
		t.Fatalf("expected 2 modification details, got %+v", pl.IdentificationArea.ModificationHistory)
	}
	if !pl.IdentificationArea.ModificationHistory.HasVersion("1.1") {
		t.Error("expected history to contain version 1.1")
	}

	if len(pl.BundleMemberEntries) != 2 {
		t.Fatalf("expected 2 bundle member entries, got %d", len(pl.BundleMemberEntries))
	}
	if pl.BundleMemberEntries[0].Kind != label.ReferenceLidVid {
		t.Error("expected first entry to carry a lidvid reference")
	}
	if pl.BundleMemberEntries[1].Kind != label.ReferenceLid {
		t.Error("expected second entry to carry a lid-only reference")
	}
	if pl.BundleMemberEntries[1].EffectiveLidVid().Vid.Present() {
		t.Error("lid-only reference's effective lidvid should have an absent vid")
	}

	sum := md5.Sum([]byte(bundleXML))
	if checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("checksum mismatch: got %s", checksum)
	}
}

func TestDecodeCollectionInventoryFileName(t *testing.T) {
	pl, _, err := label.Decode(strings.NewReader(collectionXML))
	if err != nil {
		t.Fatal(err)
	}
	name, ok := pl.InventoryFileName()
	if !ok || name != "collection_demo_inventory.csv" {
		t.Errorf("got (%q, %v)", name, ok)
	}
}

func TestDecodeUnknownProductType(t *testing.T) {
	_, _, err := label.Decode(strings.NewReader(unknownXML))
	if err == nil {
		t.Fatal("expected error for unknown root element")
	}
	var upe *label.UnknownProductTypeError
	if !asUnknownProductType(err, &upe) {
		t.Fatalf("expected UnknownProductTypeError, got %T: %v", err, err)
	}
}

func TestDecodeIsMemoizationSafe(t *testing.T) {
	_, c1, err := label.Decode(strings.NewReader(bundleXML))
	if err != nil {
		t.Fatal(err)
	}
	_, c2, err := label.Decode(strings.NewReader(bundleXML))
	if err != nil {
		t.Fatal(err)
	}
	if c1 != c2 {
		t.Errorf("expected stable checksum across repeated decodes: %s != %s", c1, c2)
	}
}

func asUnknownProductType(err error, target **label.UnknownProductTypeError) bool {
	if u, ok := err.(*label.UnknownProductTypeError); ok {
		*target = u
		return true
	}
	return false
}
