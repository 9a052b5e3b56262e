// Package supersede implements the supersede/merge engine: partitioning
// a previous bundle's products into keep/supersede sets relative to a
// delta bundle, driving placement via pathplan, merging collection
// inventories, patching labels, and copying files into a merged tree.
//
// The copy phases run as ordered barriers -- labels, then data files,
// then ancillary copies, then inventory-merge-and-label-patch -- and only
// within a phase may independent copies run concurrently. This enforces a
// write-before-read ordering: a collection's merged inventory must be
// fully written under the merged tree before its label's
// records/file_size/md5_checksum are patched, because the patched
// checksum must reflect the bytes actually on disk, not the source
// inventory's.
package supersede

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"pds4delta/bundle"
	"pds4delta/ident"
	"pds4delta/internal/fsutil"
	"pds4delta/inventory"
	"pds4delta/label"
	"pds4delta/labeledit"
	"pds4delta/pathplan"
	"pds4delta/validate"
)

const copyWorkers = 8

// Options configures a supersede run.
type Options struct {
	// Jaxa enables the JAXA bundle-completion pass: bundle member entries
	// the delta omits for collections that are unchanged from the
	// previous bundle are reinjected into the merged bundle label.
	Jaxa bool
	// DryRun suppresses every file write; placement is still computed and
	// logged.
	DryRun bool
}

// Engine drives one supersede/merge run from a previous and delta
// FullBundle into a merged tree rooted at MergedPath.
type Engine struct {
	Previous   *bundle.FullBundle
	Delta      *bundle.FullBundle
	MergedPath string
	Opts       Options

	// Log receives one line per planned or executed file action; nil is a
	// valid no-op logger.
	Log func(format string, args ...interface{})
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Log != nil {
		e.Log(format, args...)
	}
}

// Run executes the full supersede/merge algorithm, materializing the
// merged tree at e.MergedPath (unless e.Opts.DryRun is set, in which case
// file actions are only logged).
func (e *Engine) Run() error {
	prevBase := e.Previous.Path
	deltaBase := e.Delta.Path

	keepBundles, supersedeBundles := partitionBundles(e.Previous.Bundles, e.Delta.Bundles)
	keepCollections, supersedeCollections := partitionCollections(e.Previous.Collections, e.Delta.Collections)
	keepProducts, supersedeProducts := partitionProducts(e.Previous.Products, e.Delta.Products)

	if err := e.copyAllLabels(keepBundles, supersedeBundles, keepCollections, supersedeCollections, keepProducts, supersedeProducts, prevBase, deltaBase); err != nil {
		return err
	}

	if err := e.copyAllDataFiles(keepProducts, supersedeProducts, prevBase, deltaBase); err != nil {
		return err
	}

	// The bundle itself is always treated as superseded: the delta always
	// supplies exactly one bundle LIDVID matching the previous bundle's
	// LID, so every live previous bundle's README is placed under
	// SUPERSEDED/, never mirrored.
	if err := e.copyReadmes(e.Previous.Bundles, prevBase); err != nil {
		return err
	}

	if err := e.copyDeltaReadmes(deltaBase); err != nil {
		return err
	}

	if err := e.copyUnmodifiedCollectionInventories(keepCollections, prevBase); err != nil {
		return err
	}

	if err := e.copySupersededCollectionInventories(supersedeCollections, prevBase); err != nil {
		return err
	}

	if err := e.copyPreviouslySuperseded(prevBase); err != nil {
		return err
	}

	if err := e.mergeCollections(supersedeCollections, deltaBase); err != nil {
		return err
	}

	if e.Opts.Jaxa {
		if err := e.completeJaxaBundle(keepCollections, deltaBase); err != nil {
			return err
		}
	}

	return nil
}

// --- partitioning -----------------------------------------------------

func partitionBundles(previous, delta []bundle.BundleProduct) (keep, supersede []bundle.BundleProduct) {
	deltaLids := make(map[ident.Lid]struct{}, len(delta))
	for _, d := range delta {
		deltaLids[d.Label.IdentificationArea.LidVid.Lid] = struct{}{}
	}
	for _, p := range previous {
		if _, ok := deltaLids[p.Label.IdentificationArea.LidVid.Lid]; ok {
			supersede = append(supersede, p)
		} else {
			keep = append(keep, p)
		}
	}
	return keep, supersede
}

func partitionCollections(previous, delta []bundle.CollectionProduct) (keep, supersede []bundle.CollectionProduct) {
	deltaLids := make(map[ident.Lid]struct{}, len(delta))
	for _, d := range delta {
		deltaLids[d.Label.IdentificationArea.LidVid.Lid] = struct{}{}
	}
	for _, p := range previous {
		if _, ok := deltaLids[p.Label.IdentificationArea.LidVid.Lid]; ok {
			supersede = append(supersede, p)
		} else {
			keep = append(keep, p)
		}
	}
	return keep, supersede
}

func partitionProducts(previous, delta []bundle.BasicProduct) (keep, supersede []bundle.BasicProduct) {
	deltaLids := make(map[ident.Lid]struct{}, len(delta))
	for _, d := range delta {
		deltaLids[d.Label.IdentificationArea.LidVid.Lid] = struct{}{}
	}
	for _, p := range previous {
		if _, ok := deltaLids[p.Label.IdentificationArea.LidVid.Lid]; ok {
			supersede = append(supersede, p)
		} else {
			keep = append(keep, p)
		}
	}
	return keep, supersede
}

// --- copy primitives ----------------------------------------------------

// copyOne performs (or, under dry-run, merely logs) one file copy.
func (e *Engine) copyOne(src, dest string) error {
	e.logf("%s -> %s", src, dest)
	if e.Opts.DryRun {
		return nil
	}
	if _, err := fsutil.CopyFile(src, dest); err != nil {
		return errors.Wrapf(err, "could not copy %s to %s", src, dest)
	}
	return nil
}

// copyConcurrent runs n independent copy actions with a bounded worker
// pool, grounded on cmd/ocfl/cp.go's doCopy/scan producer-consumer shape.
// The first error cancels remaining work via the errgroup's context.
func (e *Engine) copyConcurrent(actions []func() error) error {
	g, ctx := errgroup.WithContext(context.Background())
	sem := make(chan struct{}, copyWorkers)
	for _, action := range actions {
		action := action
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return action()
		})
	}
	return g.Wait()
}

// --- phase 1: labels ----------------------------------------------------

func (e *Engine) copyAllLabels(
	keepBundles, supersedeBundles []bundle.BundleProduct,
	keepCollections, supersedeCollections []bundle.CollectionProduct,
	keepProducts, supersedeProducts []bundle.BasicProduct,
	prevBase, deltaBase string,
) error {
	var actions []func() error

	for _, p := range keepBundles {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, false))
	}
	for _, p := range supersedeBundles {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, true))
	}
	for _, p := range keepCollections {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, false))
	}
	for _, p := range supersedeCollections {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, true))
	}
	for _, p := range keepProducts {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, false))
	}
	for _, p := range supersedeProducts {
		actions = append(actions, e.planLabelCopy(p.LabelPath, prevBase, p.Label.IdentificationArea.LidVid.Vid, true))
	}

	for _, p := range e.Delta.Bundles {
		actions = append(actions, e.planLabelCopy(p.LabelPath, deltaBase, ident.Vid{}, false))
	}
	for _, p := range e.Delta.Collections {
		actions = append(actions, e.planLabelCopy(p.LabelPath, deltaBase, ident.Vid{}, false))
	}
	for _, p := range e.Delta.Products {
		actions = append(actions, e.planLabelCopy(p.LabelPath, deltaBase, ident.Vid{}, false))
	}

	return e.copyConcurrent(actions)
}

func (e *Engine) planLabelCopy(srcPath, oldBase string, vid ident.Vid, superseded bool) func() error {
	return func() error {
		dest := e.destPath(srcPath, oldBase, vid, superseded)
		return e.copyOne(srcPath, dest)
	}
}

// destPath applies the C7 placement rules: a superseded source gets
// SUPERSEDED/vMAJOR_MINOR inserted (unless already present), then the
// whole path is relocated from oldBase to the merged tree.
func (e *Engine) destPath(path, oldBase string, vid ident.Vid, superseded bool) string {
	versioned := pathplan.GenerateProductPath(path, superseded, vid)
	return pathplan.RelocatePath(versioned, oldBase, e.MergedPath)
}

// --- phase 2: basic product data files -----------------------------------

func (e *Engine) copyAllDataFiles(keepProducts, supersedeProducts []bundle.BasicProduct, prevBase, deltaBase string) error {
	var actions []func() error

	for _, p := range keepProducts {
		for _, d := range p.DataPaths {
			actions = append(actions, e.planLabelCopy(d, prevBase, p.Label.IdentificationArea.LidVid.Vid, false))
		}
	}
	for _, p := range supersedeProducts {
		for _, d := range p.DataPaths {
			actions = append(actions, e.planLabelCopy(d, prevBase, p.Label.IdentificationArea.LidVid.Vid, true))
		}
	}
	for _, p := range e.Delta.Products {
		for _, d := range p.DataPaths {
			actions = append(actions, e.planLabelCopy(d, deltaBase, ident.Vid{}, false))
		}
	}

	return e.copyConcurrent(actions)
}

// --- phase 3: readmes, unmodified inventories, superseded carry-through --

func (e *Engine) copyReadmes(previousBundles []bundle.BundleProduct, prevBase string) error {
	var actions []func() error
	for _, p := range previousBundles {
		if p.ReadmePath == "" {
			continue
		}
		vid := p.Label.IdentificationArea.LidVid.Vid
		actions = append(actions, e.planLabelCopy(p.ReadmePath, prevBase, vid, true))
	}
	return e.copyConcurrent(actions)
}

// copyDeltaReadmes mirrors the delta bundle's README, if it has one, to its
// live position under the merged tree.
func (e *Engine) copyDeltaReadmes(deltaBase string) error {
	var actions []func() error
	for _, p := range e.Delta.Bundles {
		if p.ReadmePath == "" {
			continue
		}
		actions = append(actions, e.planMirrorCopy(p.ReadmePath, deltaBase))
	}
	return e.copyConcurrent(actions)
}

// copyUnmodifiedCollectionInventories mirrors the inventory file of every
// unchanged (kept) collection, sourcing from the previous bundle and
// writing under the merged tree.
func (e *Engine) copyUnmodifiedCollectionInventories(keepCollections []bundle.CollectionProduct, prevBase string) error {
	var actions []func() error
	for _, c := range keepCollections {
		if c.InventoryPath == "" {
			continue
		}
		actions = append(actions, e.planLabelCopy(c.InventoryPath, prevBase, c.Label.IdentificationArea.LidVid.Vid, false))
	}
	return e.copyConcurrent(actions)
}

// copySupersededCollectionInventories preserves the original inventory of
// every being-superseded collection under its versioned SUPERSEDED/
// sub-tree, alongside its label.
func (e *Engine) copySupersededCollectionInventories(supersedeCollections []bundle.CollectionProduct, prevBase string) error {
	var actions []func() error
	for _, c := range supersedeCollections {
		if c.InventoryPath == "" {
			continue
		}
		actions = append(actions, e.planLabelCopy(c.InventoryPath, prevBase, c.Label.IdentificationArea.LidVid.Vid, true))
	}
	return e.copyConcurrent(actions)
}

// copyPreviouslySuperseded carries every artifact already under a
// SUPERSEDED/ sub-tree (from a previous supersede run) through to the
// merged tree, mirrored with no further rewrite.
func (e *Engine) copyPreviouslySuperseded(prevBase string) error {
	var actions []func() error

	for _, p := range e.Previous.SupersededBundles {
		actions = append(actions, e.planMirrorCopy(p.LabelPath, prevBase))
		if p.ReadmePath != "" {
			actions = append(actions, e.planMirrorCopy(p.ReadmePath, prevBase))
		}
	}
	for _, c := range e.Previous.SupersededCollections {
		actions = append(actions, e.planMirrorCopy(c.LabelPath, prevBase))
		if c.InventoryPath != "" {
			actions = append(actions, e.planMirrorCopy(c.InventoryPath, prevBase))
		}
	}
	for _, p := range e.Previous.SupersededProducts {
		actions = append(actions, e.planMirrorCopy(p.LabelPath, prevBase))
		for _, d := range p.DataPaths {
			actions = append(actions, e.planMirrorCopy(d, prevBase))
		}
	}

	return e.copyConcurrent(actions)
}

func (e *Engine) planMirrorCopy(srcPath, oldBase string) func() error {
	return func() error {
		dest := pathplan.RelocatePath(srcPath, oldBase, e.MergedPath)
		return e.copyOne(srcPath, dest)
	}
}

// --- phase 4: inventory merge and collection label patch -----------------

// mergeCollections pairs each being-superseded previous collection with
// the delta collection sharing its LID, merges their inventories, writes
// the merged CSV to the delta collection's merged-tree path, then patches
// the already-copied delta collection label in place. The write-then-patch
// order within each collection is sequential by construction (the label
// patch runs inside the same action as the write it depends on); across
// collections, merges may run concurrently.
func (e *Engine) mergeCollections(supersedeCollections []bundle.CollectionProduct, deltaBase string) error {
	var actions []func() error
	for _, prev := range supersedeCollections {
		prev := prev
		deltaColl, ok := findDeltaCollection(e.Delta.Collections, prev.Label.IdentificationArea.LidVid.Lid)
		if !ok {
			continue
		}
		actions = append(actions, func() error {
			return e.mergeOneCollection(prev, deltaColl, deltaBase)
		})
	}
	return e.copyConcurrent(actions)
}

func findDeltaCollection(collections []bundle.CollectionProduct, lid ident.Lid) (bundle.CollectionProduct, bool) {
	for _, c := range collections {
		if c.Label.IdentificationArea.LidVid.Lid == lid {
			return c, true
		}
	}
	return bundle.CollectionProduct{}, false
}

func (e *Engine) mergeOneCollection(prev, delta bundle.CollectionProduct, deltaBase string) error {
	merged := inventory.New()
	if err := merged.IngestNewInventory(prev.Inventory); err != nil {
		return errors.Wrapf(err, "merging inventory for collection %s", prev.Label.IdentificationArea.LidVid.Lid)
	}
	if err := merged.IngestNewInventory(delta.Inventory); err != nil {
		return errors.Wrapf(err, "merging inventory for collection %s", prev.Label.IdentificationArea.LidVid.Lid)
	}

	csv := merged.ToCSV() + "\r\n"
	destInventoryPath := pathplan.RelocatePath(delta.InventoryPath, deltaBase, e.MergedPath)
	destLabelPath := pathplan.RelocatePath(delta.LabelPath, deltaBase, e.MergedPath)

	e.logf("merging inventory for %s: %d rows -> %s", prev.Label.IdentificationArea.LidVid.Lid, merged.Len(), destInventoryPath)

	if e.Opts.DryRun {
		return nil
	}

	checksum, err := fsutil.WriteString(destInventoryPath, csv)
	if err != nil {
		return errors.Wrapf(err, "writing merged inventory at %s", destInventoryPath)
	}

	// The label must be patched only after the inventory it describes is
	// fully on disk: the md5_checksum element must reflect the final
	// merged bytes, not the source delta inventory's.
	if err := labeledit.PatchCollectionLabel(destLabelPath, destLabelPath, merged.Len(), int64(len(csv)), checksum); err != nil {
		return errors.Wrapf(err, "patching merged collection label at %s", destLabelPath)
	}

	return nil
}

// --- JAXA bundle completion ----------------------------------------------

// completeJaxaBundle reinjects bundle member entries the delta omitted for
// collections unchanged from the previous bundle (the ones still present
// in keepCollections).
func (e *Engine) completeJaxaBundle(keepCollections []bundle.CollectionProduct, deltaBase string) error {
	if len(e.Delta.Bundles) != 1 {
		return nil
	}
	deltaBundleLid := e.Delta.Bundles[0].Label.IdentificationArea.LidVid.Lid

	latest, ok := latestPreviousBundle(e.Previous.Bundles, e.Previous.SupersededBundles, deltaBundleLid)
	if !ok {
		return nil
	}

	keepLids := make(map[ident.Lid]struct{}, len(keepCollections))
	for _, c := range keepCollections {
		keepLids[c.Label.IdentificationArea.LidVid.Lid] = struct{}{}
	}

	var candidates []label.BundleMemberEntry
	for _, entry := range latest.Label.BundleMemberEntries {
		if _, ok := keepLids[entry.EffectiveLidVid().Lid]; ok {
			candidates = append(candidates, entry)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	patched, _ := validate.PatchBundleMemberEntries(candidates, keepCollections)

	destBundleLabel := pathplan.RelocatePath(e.Delta.Bundles[0].LabelPath, deltaBase, e.MergedPath)
	e.logf("jaxa: injecting %d bundle member entries into %s", len(patched), destBundleLabel)

	if e.Opts.DryRun {
		return nil
	}

	return labeledit.InjectBundleMemberEntries(destBundleLabel, labeledit.MemberEntriesFrom(patched))
}

// latestPreviousBundle finds, among live and superseded previous bundles
// sharing lid, the one with the highest VID.
func latestPreviousBundle(live, superseded []bundle.BundleProduct, lid ident.Lid) (bundle.BundleProduct, bool) {
	var best bundle.BundleProduct
	found := false
	consider := func(p bundle.BundleProduct) {
		if p.Label.IdentificationArea.LidVid.Lid != lid {
			return
		}
		if !found || best.Label.IdentificationArea.LidVid.Vid.Less(p.Label.IdentificationArea.LidVid.Vid) {
			best = p
			found = true
		}
	}
	for _, p := range live {
		consider(p)
	}
	for _, p := range superseded {
		consider(p)
	}
	return best, found
}
