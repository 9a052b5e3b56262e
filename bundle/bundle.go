// Package bundle walks an on-disk PDS4 bundle directory and assembles a
// FullBundle: a classified snapshot of every label found, partitioned into
// live and superseded buckets by product kind.
package bundle

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"pds4delta/ident"
	"pds4delta/inventory"
	"pds4delta/label"
)

const goDeeper = false

// BasicProduct is a label paired with the ordered data files it describes.
type BasicProduct struct {
	Label     *label.ProductLabel
	LabelPath string
	DataPaths []string
}

// CollectionProduct is a label paired with its parsed sibling inventory.
type CollectionProduct struct {
	Label         *label.ProductLabel
	LabelPath     string
	InventoryPath string
	Inventory     *inventory.CollectionInventory
}

// BundleProduct is a bundle label, optionally paired with a readme file.
type BundleProduct struct {
	Label      *label.ProductLabel
	LabelPath  string
	ReadmePath string
}

// FullBundle is the on-disk snapshot of one bundle directory, partitioned
// into live and superseded buckets by product kind.
type FullBundle struct {
	Path                  string
	Bundles               []BundleProduct
	SupersededBundles     []BundleProduct
	Collections           []CollectionProduct
	SupersededCollections []CollectionProduct
	Products              []BasicProduct
	SupersededProducts    []BasicProduct
}

// NoBundleLabelError reports that a root directory contains no live bundle
// label.
type NoBundleLabelError struct {
	Path string
}

func (e *NoBundleLabelError) Error() string {
	return "no live bundle label found under " + e.Path
}

// isSuperseded reports whether any path component of path equals
// "SUPERSEDED".
func isSuperseded(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "SUPERSEDED" {
			return true
		}
	}
	return false
}

func classifyKind(path string) label.ProductKind {
	switch {
	case strings.Contains(path, "bundle"):
		return label.KindBundle
	case strings.Contains(path, "collection"):
		return label.KindCollection
	default:
		return label.KindBasicProduct
	}
}

// Load walks root, classifies every ".xml" file found as a bundle,
// collection, or basic-product label by path substring, and assembles a
// FullBundle. It fails NoBundleLabelError if no live bundle label is
// present.
func Load(root string) (*FullBundle, error) {
	fb := &FullBundle{Path: root}

	err := fsWalk(root, func(ospath string, e *godirwalk.Dirent) (bool, error) {
		if e.IsDir() {
			return goDeeper, nil
		}
		if !strings.HasSuffix(ospath, ".xml") {
			return goDeeper, nil
		}

		if err := loadOne(fb, ospath); err != nil {
			return goDeeper, err
		}
		return goDeeper, nil
	})
	if err != nil {
		return nil, err
	}

	if len(fb.Bundles) != 1 {
		return nil, &NoBundleLabelError{Path: root}
	}

	return fb, nil
}

func loadOne(fb *FullBundle, path string) error {
	lbl, _, err := label.Read(path)
	if err != nil {
		return errors.Wrapf(err, "loading label at %s", path)
	}

	dir := filepath.Dir(path)
	superseded := isSuperseded(path)

	switch classifyKind(path) {
	case label.KindBundle:
		bp := BundleProduct{Label: lbl, LabelPath: path}
		if readme, ok := findReadme(dir); ok {
			bp.ReadmePath = readme
		}
		if superseded {
			fb.SupersededBundles = append(fb.SupersededBundles, bp)
		} else {
			fb.Bundles = append(fb.Bundles, bp)
		}

	case label.KindCollection:
		cp := CollectionProduct{Label: lbl, LabelPath: path}
		if name, ok := lbl.InventoryFileName(); ok {
			invPath := filepath.Join(dir, name)
			inv, err := loadInventory(invPath)
			if err != nil {
				return errors.Wrapf(err, "loading inventory for %s", path)
			}
			cp.InventoryPath = invPath
			cp.Inventory = inv
		} else {
			cp.Inventory = inventory.New()
		}
		if superseded {
			fb.SupersededCollections = append(fb.SupersededCollections, cp)
		} else {
			fb.Collections = append(fb.Collections, cp)
		}

	default:
		bp := BasicProduct{Label: lbl, LabelPath: path}
		for _, fa := range lbl.FileAreas {
			bp.DataPaths = append(bp.DataPaths, filepath.Join(dir, fa.FileName))
		}
		if superseded {
			fb.SupersededProducts = append(fb.SupersededProducts, bp)
		} else {
			fb.Products = append(fb.Products, bp)
		}
	}

	return nil
}

// findReadme looks for a file directly under dir whose name begins with
// "readme", case-insensitively (e.g. readme.txt, README.txt), and returns
// its path. Bundle labels don't declare their readme in a File_Area, so
// this is a directory scan rather than a label-driven lookup.
func findReadme(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(entry.Name()), "readme") {
			return filepath.Join(dir, entry.Name()), true
		}
	}
	return "", false
}

func loadInventory(path string) (*inventory.CollectionInventory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read inventory at %s", path)
	}
	return inventory.FromCSV(string(raw))
}

// CollectionByLid returns the live collection whose LID equals lid, if any.
func (fb *FullBundle) CollectionByLid(lid ident.Lid) (CollectionProduct, bool) {
	for _, c := range fb.Collections {
		if c.Label.IdentificationArea.LidVid.Lid == lid {
			return c, true
		}
	}
	return CollectionProduct{}, false
}

// ProductByLid returns the live basic product whose LID equals lid, if any.
func (fb *FullBundle) ProductByLid(lid ident.Lid) (BasicProduct, bool) {
	for _, p := range fb.Products {
		if p.Label.IdentificationArea.LidVid.Lid == lid {
			return p, true
		}
	}
	return BasicProduct{}, false
}

type skip struct {
	action godirwalk.ErrorAction
}

func (skip) Error() string {
	return "node is skipped"
}

type fsCallback func(ospath string, e *godirwalk.Dirent) (terminal bool, err error)

func fsWalk(dir string, f fsCallback) error {
	return godirwalk.Walk(dir, &godirwalk.Options{
		Callback: func(ospath string, dirent *godirwalk.Dirent) error {
			terminal, err := f(ospath, dirent)
			if err != nil {
				return errors.Wrap(err, "terminating walk due to error")
			}
			if terminal {
				return skip{godirwalk.SkipNode}
			}
			return nil
		},
		ErrorCallback: func(ospath string, err error) godirwalk.ErrorAction {
			s, ok := errors.Cause(err).(skip)
			if ok {
				return s.action
			}
			return godirwalk.Halt
		},
		Unsorted:            true,
		FollowSymbolicLinks: true,
	})
}
