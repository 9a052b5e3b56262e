package bundle_test

import (
	"os"
	"path/filepath"
	"testing"

	"pds4delta/bundle"
)

const demoBundleXML = `<?xml version="1.0" encoding="UTF-8"?>
<Product_Bundle xmlns="http://pds.nasa.gov/pds4/pds/v1">
	<Identification_Area>
		<logical_identifier>urn:nasa:pds:demo</logical_identifier>
		<version_id>1.0</version_id>
		<Modification_History>
			<Modification_Detail>
				<version_id>1.0</version_id>
				<modification_date>2020-01-01</modification_date>
				<description>initial</description>
			</Modification_Detail>
		</Modification_History>
	</Identification_Area>
	<Bundle_Member_Entry>
		<lidvid_reference>urn:nasa:pds:demo:collection::1.0</lidvid_reference>
		<member_status>Primary</member_status>
		<reference_type>bundle_has_collection</reference_type>
	</Bundle_Member_Entry>
</Product_Bundle>`

const demoCollectionXML = `<?xml version="1.0" encoding="UTF-8"?>
<Product_Collection xmlns="http://pds.nasa.gov/pds4/pds/v1">
	<Identification_Area>
		<logical_identifier>urn:nasa:pds:demo:collection</logical_identifier>
		<version_id>1.0</version_id>
		<Modification_History>
			<Modification_Detail>
				<version_id>1.0</version_id>
				<modification_date>2020-01-01</modification_date>
				<description>initial</description>
			</Modification_Detail>
		</Modification_History>
	</Identification_Area>
	<File_Area_Inventory>
		<File>
			<file_name>collection_demo_inventory.csv</file_name>
		</File>
	</File_Area_Inventory>
</Product_Collection>`

const demoProductXML = `<?xml version="1.0" encoding="UTF-8"?>
<Product_Observational xmlns="http://pds.nasa.gov/pds4/pds/v1">
	<Identification_Area>
		<logical_identifier>urn:nasa:pds:demo:collection:x</logical_identifier>
		<version_id>1.0</version_id>
		<Modification_History>
			<Modification_Detail>
				<version_id>1.0</version_id>
				<modification_date>2020-01-01</modification_date>
				<description>initial</description>
			</Modification_Detail>
		</Modification_History>
	</Identification_Area>
	<File_Area_Observational>
		<File>
			<file_name>x.dat</file_name>
		</File>
	</File_Area_Observational>
</Product_Observational>`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func buildFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "bundle_demo.xml"), demoBundleXML)
	writeFile(t, filepath.Join(root, "collection", "collection_demo.xml"), demoCollectionXML)
	writeFile(t, filepath.Join(root, "collection", "collection_demo_inventory.csv"), "P,urn:nasa:pds:demo:collection:x::1.0")
	// Data products live outside any path component named "collection" or
	// "bundle" -- the loader classifies strictly by path substring.
	writeFile(t, filepath.Join(root, "data", "product_x.xml"), demoProductXML)

	return root
}

func TestLoadAssemblesFullBundle(t *testing.T) {
	root := buildFixture(t)

	fb, err := bundle.Load(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(fb.Bundles) != 1 {
		t.Fatalf("expected exactly 1 live bundle, got %d", len(fb.Bundles))
	}
	if len(fb.Collections) != 1 {
		t.Fatalf("expected exactly 1 live collection, got %d", len(fb.Collections))
	}
	if fb.Collections[0].Inventory == nil || fb.Collections[0].Inventory.Len() != 1 {
		t.Fatalf("expected collection inventory with 1 item, got %+v", fb.Collections[0].Inventory)
	}
	if len(fb.Products) != 1 {
		t.Fatalf("expected exactly 1 live basic product, got %d", len(fb.Products))
	}
	if len(fb.Products[0].DataPaths) != 1 {
		t.Fatalf("expected 1 data path, got %v", fb.Products[0].DataPaths)
	}
}

func TestLoadClassifiesSupersededBucket(t *testing.T) {
	root := buildFixture(t)
	writeFile(t, filepath.Join(root, "collection", "SUPERSEDED", "v1_0", "collection_demo.xml"), demoCollectionXML)
	writeFile(t, filepath.Join(root, "collection", "SUPERSEDED", "v1_0", "collection_demo_inventory.csv"), "P,urn:nasa:pds:demo:collection:x::1.0")

	fb, err := bundle.Load(root)
	if err != nil {
		t.Fatal(err)
	}

	if len(fb.SupersededCollections) != 1 {
		t.Fatalf("expected 1 superseded collection, got %d", len(fb.SupersededCollections))
	}
	if len(fb.Collections) != 1 {
		t.Fatalf("superseded copy should not count as live, got %d live collections", len(fb.Collections))
	}
}

func TestLoadFailsWithoutBundleLabel(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "collection", "collection_demo.xml"), demoCollectionXML)
	writeFile(t, filepath.Join(root, "collection", "collection_demo_inventory.csv"), "")

	_, err := bundle.Load(root)
	if err == nil {
		t.Fatal("expected NoBundleLabelError")
	}
	var nb *bundle.NoBundleLabelError
	if !asNoBundleLabel(err, &nb) {
		t.Fatalf("expected NoBundleLabelError, got %T: %v", err, err)
	}
}

func asNoBundleLabel(err error, target **bundle.NoBundleLabelError) bool {
	if n, ok := err.(*bundle.NoBundleLabelError); ok {
		*target = n
		return true
	}
	return false
}
