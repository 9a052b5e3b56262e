// Package validate implements the readiness check: a battery of
// comparisons between a previous and a delta bundle that never halts on
// the first failure, instead accumulating a severity-tagged list of
// ValidationError for the caller to inspect.
package validate

import (
	"fmt"
	"path/filepath"
	"sort"

	"pds4delta/bundle"
	"pds4delta/ident"
	"pds4delta/inventory"
	"pds4delta/label"
)

// Severity classifies how a ValidationError should be treated by a caller.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ErrorType names the taxonomy of readiness-check failures.
type ErrorType string

const (
	ErrMalformedIdentifier                                      ErrorType = "MalformedIdentifier"
	ErrUnknownProductType                                       ErrorType = "UnknownProductType"
	ErrNoBundleLabel                                             ErrorType = "NoBundleLabel"
	ErrDuplicateProduct                                          ErrorType = "DuplicateProduct"
	ErrIncorrectlyIncrementedLidVid                              ErrorType = "incorrectly_incremented_lidvid"
	ErrNonLidVidReference                                        ErrorType = "non_lidvid_reference"
	ErrMissingVidFromLidVid                                      ErrorType = "missing_vid_from_lidvid"
	ErrCollectionMissingFromPreviousBundle                       ErrorType = "collection_missing_from_previous_bundle"
	ErrCollectionMissingFromDeltaBundle                          ErrorType = "collection_missing_from_delta_bundle"
	ErrCollectionNotDeclared                                     ErrorType = "collection_not_declared"
	ErrDeclaredCollectionNotFound                                ErrorType = "declared_collection_not_found"
	ErrMissingModificationHistory                                ErrorType = "missing_modification_history"
	ErrMissingCurrentModificationDetail                          ErrorType = "missing_current_modification_detail"
	ErrNotEnoughModificationDetails                              ErrorType = "not_enough_modification_details"
	ErrIncorrectModificationDetailCountForSupersedingProduct     ErrorType = "incorrect_modification_detail_count_for_superseding_product"
	ErrIncorrectModificationDetailCountForNonSupersedingProduct  ErrorType = "incorrect_modification_detail_count_for_non_superseding_product"
	ErrMismatchedModificationDetail                              ErrorType = "mismatched_modification_detail"
	ErrDuplicateProducts                                         ErrorType = "duplicate_products"
	ErrProductInconsistentFilenames                              ErrorType = "product_inconsistent_filenames"
	ErrDataInconsistentFilename                                  ErrorType = "data_inconsistent_filename"
	ErrPreviousProductMissing                                    ErrorType = "previous_product_missing"
	ErrPatchedLidReferenceWithCollectionLidVid                   ErrorType = "patched_lid_reference_with_collection_lidvid"
	ErrUnpatchableLidReference                                   ErrorType = "unpatchable_lid_reference"
)

// ValidationError is a single readiness-check finding.
type ValidationError struct {
	Message  string
	Type     ErrorType
	Severity Severity
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Type, e.Message)
}

// result accumulates findings without ever aborting a check early. It
// mirrors the pattern of appending fatal and warning findings to a single
// running list and letting the caller decide what a failure means.
type result struct {
	findings []ValidationError
}

func (r *result) AddFatal(t ErrorType, format string, args ...interface{}) {
	r.findings = append(r.findings, ValidationError{
		Message:  fmt.Sprintf(format, args...),
		Type:     t,
		Severity: SeverityError,
	})
}

func (r *result) AddWarn(t ErrorType, format string, args ...interface{}) {
	r.findings = append(r.findings, ValidationError{
		Message:  fmt.Sprintf(format, args...),
		Type:     t,
		Severity: SeverityWarning,
	})
}

func (r *result) hasFatal() bool {
	for _, f := range r.findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CheckReady compares previous against delta and returns every finding.
// jaxa relaxes V1f, permitting the delta bundle to omit member entries for
// collections that are unchanged from the previous bundle.
func CheckReady(previous, delta *bundle.FullBundle, jaxa bool) []ValidationError {
	r := &result{}

	if len(previous.Bundles) != 1 || len(delta.Bundles) != 1 {
		r.AddFatal(ErrNoBundleLabel, "readiness check requires exactly one live bundle label in each tree")
		return r.findings
	}
	prevBundle := previous.Bundles[0]
	deltaBundle := delta.Bundles[0]

	checkModificationHistory(r, prevBundle.Label, deltaBundle.Label, "bundle "+deltaBundle.Label.IdentificationArea.LidVid.Lid.String())

	prevLidVid := prevBundle.Label.IdentificationArea.LidVid
	deltaLidVid := deltaBundle.Label.IdentificationArea.LidVid
	if !ident.LegalBump(prevLidVid.Vid, deltaLidVid.Vid, ident.MandatoryBump) {
		r.AddFatal(ErrIncorrectlyIncrementedLidVid, "bundle %s: delta vid %s is not a legal increment of previous vid %s",
			deltaLidVid.Lid, deltaLidVid.Vid, prevLidVid.Vid)
	}

	patchedPrevEntries, patchWarnings := PatchBundleMemberEntries(prevBundle.Label.BundleMemberEntries, previous.Collections)
	r.findings = append(r.findings, patchWarnings...)

	checkV1c(r, deltaBundle.Label.BundleMemberEntries)
	checkV1d(r, deltaBundle.Label.BundleMemberEntries)
	checkV1e(r, patchedPrevEntries, deltaBundle.Label.BundleMemberEntries)
	checkV1f(r, patchedPrevEntries, deltaBundle.Label.BundleMemberEntries, jaxa)

	checkV2(r, deltaBundle.Label.BundleMemberEntries, delta.Collections)

	if !r.hasFatal() {
		checkV3(r, previous.Collections, delta.Collections)
		checkV4(r, previous.Collections, delta.Collections)
		checkV5Collections(r, previous.Collections, delta.Collections)
	}

	checkV6(r, previous, delta)
	checkV7(r, previous.Products, delta.Products)

	return r.findings
}

func checkModificationHistory(r *result, prev, cur *label.ProductLabel, subject string) {
	prevHist := prev.IdentificationArea.ModificationHistory
	curHist := cur.IdentificationArea.ModificationHistory

	if prevHist == nil || curHist == nil {
		r.AddFatal(ErrMissingModificationHistory, "%s: modification history is missing", subject)
		return
	}

	if !curHist.HasVersion(cur.IdentificationArea.LidVid.Vid.String()) {
		r.AddFatal(ErrMissingCurrentModificationDetail, "%s: current vid %s not recorded in modification history",
			subject, cur.IdentificationArea.LidVid.Vid)
	}
	if !prevHist.HasVersion(prev.IdentificationArea.LidVid.Vid.String()) {
		r.AddFatal(ErrMissingCurrentModificationDetail, "%s (previous): current vid %s not recorded in modification history",
			subject, prev.IdentificationArea.LidVid.Vid)
	}

	prevSorted := sortedDetails(prevHist.Details)
	curSorted := sortedDetails(curHist.Details)

	if len(curSorted) < len(prevSorted) {
		r.AddFatal(ErrNotEnoughModificationDetails, "%s: delta history has fewer details than previous", subject)
		return
	}
	for i, d := range prevSorted {
		if !d.Equal(curSorted[i]) {
			r.AddFatal(ErrMismatchedModificationDetail, "%s: modification detail %d diverges between previous and delta", subject, i)
			return
		}
	}

	prevVid := prev.IdentificationArea.LidVid.Vid
	curVid := cur.IdentificationArea.LidVid.Vid
	switch {
	case curVid.Equal(prevVid):
		if len(curSorted) != len(prevSorted) {
			r.AddFatal(ErrIncorrectModificationDetailCountForNonSupersedingProduct,
				"%s: vid unchanged but modification detail count changed (%d -> %d)", subject, len(prevSorted), len(curSorted))
		}
	default:
		if len(curSorted) != len(prevSorted)+1 {
			r.AddFatal(ErrIncorrectModificationDetailCountForSupersedingProduct,
				"%s: vid bumped but modification detail count is not exactly one more (%d -> %d)", subject, len(prevSorted), len(curSorted))
		}
	}
}

func sortedDetails(details []label.ModificationDetail) []label.ModificationDetail {
	out := make([]label.ModificationDetail, len(details))
	copy(out, details)
	sort.Slice(out, func(i, j int) bool { return out[i].VersionID < out[j].VersionID })
	return out
}

// PatchBundleMemberEntries substitutes a synthesized lidvid_reference entry
// for every lid-only entry whose LID matches a known collection, emitting a
// warning for each substitution and for each entry that could not be
// matched. It is also used by the supersede engine's JAXA bundle
// completion, which needs the same lid-only-reference patching this
// readiness check applies to the previous bundle's member entries.
func PatchBundleMemberEntries(entries []label.BundleMemberEntry, collections []bundle.CollectionProduct) ([]label.BundleMemberEntry, []ValidationError) {
	var warnings []ValidationError
	patched := make([]label.BundleMemberEntry, len(entries))

	for i, e := range entries {
		if e.Kind == label.ReferenceLidVid {
			patched[i] = e
			continue
		}

		var match *bundle.CollectionProduct
		for j := range collections {
			if collections[j].Label.IdentificationArea.LidVid.Lid == e.Lid {
				match = &collections[j]
				break
			}
		}

		if match == nil {
			warnings = append(warnings, ValidationError{
				Message:  fmt.Sprintf("bundle member entry %s: no matching collection found to patch lid-only reference", e.Lid),
				Type:     ErrUnpatchableLidReference,
				Severity: SeverityWarning,
			})
			patched[i] = e
			continue
		}

		synthesized := e
		synthesized.Kind = label.ReferenceLidVid
		synthesized.LidVid = match.Label.IdentificationArea.LidVid
		patched[i] = synthesized

		warnings = append(warnings, ValidationError{
			Message:  fmt.Sprintf("bundle member entry %s: patched lid-only reference to %s", e.Lid, synthesized.LidVid),
			Type:     ErrPatchedLidReferenceWithCollectionLidVid,
			Severity: SeverityWarning,
		})
	}

	return patched, warnings
}

func checkV1c(r *result, deltaEntries []label.BundleMemberEntry) {
	for _, e := range deltaEntries {
		if e.Kind != label.ReferenceLidVid {
			r.AddFatal(ErrNonLidVidReference, "delta bundle member entry %s lacks a lidvid_reference", e.Lid)
		}
	}
}

func checkV1d(r *result, deltaEntries []label.BundleMemberEntry) {
	for _, e := range deltaEntries {
		if e.Kind != label.ReferenceLidVid {
			continue
		}
		checkVidPresence(r, e.LidVid)
	}
}

func checkV1e(r *result, prevEntries, deltaEntries []label.BundleMemberEntry) {
	for _, d := range deltaEntries {
		if d.Kind != label.ReferenceLidVid || !d.LidVid.Vid.Superseding() {
			continue
		}
		var found *label.BundleMemberEntry
		for i := range prevEntries {
			if prevEntries[i].EffectiveLidVid().Lid == d.LidVid.Lid {
				found = &prevEntries[i]
				break
			}
		}
		if found == nil {
			r.AddFatal(ErrCollectionMissingFromPreviousBundle, "delta collection %s has no prior version in the previous bundle", d.LidVid.Lid)
			continue
		}
		prevVid := found.EffectiveLidVid().Vid
		if !ident.LegalBump(prevVid, d.LidVid.Vid, ident.AnyBump) {
			r.AddFatal(ErrIncorrectlyIncrementedLidVid, "collection %s: delta vid %s is not a legal increment of previous vid %s",
				d.LidVid.Lid, d.LidVid.Vid, prevVid)
		}
	}
}

func checkV1f(r *result, prevEntries, deltaEntries []label.BundleMemberEntry, jaxa bool) {
	if jaxa {
		return
	}
	for _, p := range prevEntries {
		pLid := p.EffectiveLidVid().Lid
		found := false
		for _, d := range deltaEntries {
			if d.EffectiveLidVid().Lid == pLid {
				found = true
				break
			}
		}
		if !found {
			r.AddFatal(ErrCollectionMissingFromDeltaBundle, "previous bundle member %s has no corresponding delta bundle member", pLid)
		}
	}
}

func checkV2(r *result, deltaEntries []label.BundleMemberEntry, deltaCollections []bundle.CollectionProduct) {
	declared := make(map[ident.LidVid]struct{}, len(deltaEntries))
	for _, e := range deltaEntries {
		if e.Kind == label.ReferenceLidVid {
			declared[e.LidVid] = struct{}{}
		}
	}

	onDisk := make(map[ident.LidVid]struct{}, len(deltaCollections))
	for _, c := range deltaCollections {
		onDisk[c.Label.IdentificationArea.LidVid] = struct{}{}
	}

	for lv := range declared {
		if _, ok := onDisk[lv]; !ok {
			r.AddWarn(ErrDeclaredCollectionNotFound, "bundle declares collection %s but no matching collection was found on disk", lv)
		}
	}
	for lv := range onDisk {
		if _, ok := declared[lv]; !ok {
			r.AddFatal(ErrCollectionNotDeclared, "collection %s found on disk but not declared in the bundle label", lv)
		}
	}
}

func checkV3(r *result, prevCollections, deltaCollections []bundle.CollectionProduct) {
	for _, d := range deltaCollections {
		p, ok := findCollection(prevCollections, d.Label.IdentificationArea.LidVid.Lid)
		if !ok {
			continue
		}
		for _, deltaItem := range d.Inventory.Items() {
			prevItem, ok := findInventoryItem(p.Inventory, deltaItem.LidVid.Lid)
			if !ok {
				continue
			}
			if !ident.LegalBump(prevItem.LidVid.Vid, deltaItem.LidVid.Vid, ident.MandatoryBump) {
				r.AddFatal(ErrIncorrectlyIncrementedLidVid, "product %s: delta vid %s is not a legal increment of previous vid %s in collection %s",
					deltaItem.LidVid.Lid, deltaItem.LidVid.Vid, prevItem.LidVid.Vid, d.Label.IdentificationArea.LidVid.Lid)
			}
		}
	}
}

func checkV4(r *result, prevCollections, deltaCollections []bundle.CollectionProduct) {
	for _, d := range deltaCollections {
		p, ok := findCollection(prevCollections, d.Label.IdentificationArea.LidVid.Lid)
		if !ok {
			continue
		}
		prevProducts := p.Inventory.Products()
		for lv := range d.Inventory.Products() {
			if _, ok := prevProducts[lv]; ok {
				r.AddFatal(ErrDuplicateProducts, "product row %s appears in both the previous and delta inventory of collection %s",
					lv, d.Label.IdentificationArea.LidVid.Lid)
			}
		}
	}
}

func checkV5Collections(r *result, prevCollections, deltaCollections []bundle.CollectionProduct) {
	for _, d := range deltaCollections {
		p, ok := findCollection(prevCollections, d.Label.IdentificationArea.LidVid.Lid)
		if !ok {
			continue
		}
		checkModificationHistory(r, p.Label, d.Label, "collection "+d.Label.IdentificationArea.LidVid.Lid.String())
	}
}

func checkV6(r *result, previous, delta *bundle.FullBundle) {
	for _, c := range delta.Collections {
		checkVidPresence(r, c.Label.IdentificationArea.LidVid)
		for _, item := range c.Inventory.Items() {
			checkVidPresence(r, item.LidVid)
		}
	}
	for _, c := range previous.Collections {
		for _, item := range c.Inventory.Items() {
			checkVidPresence(r, item.LidVid)
		}
	}
}

func checkVidPresence(r *result, lv ident.LidVid) {
	if lv.Lid == ident.ContextLid {
		return
	}
	if !lv.Vid.Present() {
		r.AddFatal(ErrMissingVidFromLidVid, "%s carries no parseable vid", lv.Lid)
	}
}

func checkV7(r *result, prevProducts, deltaProducts []bundle.BasicProduct) {
	for _, d := range deltaProducts {
		if !d.Label.IdentificationArea.LidVid.Vid.Superseding() {
			continue
		}
		p, ok := findProduct(prevProducts, d.Label.IdentificationArea.LidVid.Lid)
		if !ok {
			r.AddFatal(ErrPreviousProductMissing, "delta product %s claims to supersede a lid absent from the previous bundle",
				d.Label.IdentificationArea.LidVid.Lid)
			continue
		}

		if filepath.Base(p.LabelPath) != filepath.Base(d.LabelPath) {
			r.AddFatal(ErrProductInconsistentFilenames, "product %s: label basename changed across versions (%s -> %s)",
				d.Label.IdentificationArea.LidVid.Lid, filepath.Base(p.LabelPath), filepath.Base(d.LabelPath))
		}

		if !sameBasenameSet(p.DataPaths, d.DataPaths) {
			r.AddFatal(ErrDataInconsistentFilename, "product %s: data file basenames changed across versions",
				d.Label.IdentificationArea.LidVid.Lid)
		}
	}
}

func findCollection(collections []bundle.CollectionProduct, lid ident.Lid) (bundle.CollectionProduct, bool) {
	for _, c := range collections {
		if c.Label.IdentificationArea.LidVid.Lid == lid {
			return c, true
		}
	}
	return bundle.CollectionProduct{}, false
}

func findProduct(products []bundle.BasicProduct, lid ident.Lid) (bundle.BasicProduct, bool) {
	for _, p := range products {
		if p.Label.IdentificationArea.LidVid.Lid == lid {
			return p, true
		}
	}
	return bundle.BasicProduct{}, false
}

func findInventoryItem(inv *inventory.CollectionInventory, lid ident.Lid) (inventory.InventoryItem, bool) {
	for _, item := range inv.Items() {
		if item.LidVid.Lid == lid {
			return item, true
		}
	}
	return inventory.InventoryItem{}, false
}

func sameBasenameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, p := range a {
		set[filepath.Base(p)]++
	}
	for _, p := range b {
		set[filepath.Base(p)]--
	}
	for _, count := range set {
		if count != 0 {
			return false
		}
	}
	return true
}
