// Package ident implements the PDS4 identifier algebra: logical
// identifiers (LID), version identifiers (VID), and their combination
// (LIDVID), along with the legal-increment rules used throughout
// validation and supersede.
package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Lid is a colon-separated hierarchical PDS4 logical identifier of the
// form prefix:bundle[:collection[:product]], where prefix is the first
// three colon-delimited tokens joined together.
type Lid struct {
	Prefix     string
	Bundle     string
	Collection string
	Product    string
}

// ContextLid is the reserved bundle-level LID used for cross-references
// into the PDS4 discipline context dictionaries. Artifacts referencing it
// are exempt from the missing-VID check in V6.
var ContextLid = Lid{Prefix: "urn:nasa:pds", Bundle: "context"}

// ParseLid splits s on ':' into a Lid. Fewer than 4 tokens is malformed.
func ParseLid(s string) (Lid, error) {
	tokens := strings.Split(s, ":")
	if len(tokens) < 4 {
		return Lid{}, &MalformedIdentifierError{Value: s, Reason: "lid requires at least 4 colon-delimited tokens"}
	}

	lid := Lid{
		Prefix: strings.Join(tokens[0:3], ":"),
		Bundle: tokens[3],
	}
	if len(tokens) > 4 {
		lid.Collection = tokens[4]
	}
	if len(tokens) > 5 {
		lid.Product = tokens[5]
	}
	return lid, nil
}

// String renders the Lid back to its canonical colon-delimited form.
func (l Lid) String() string {
	parts := []string{l.Prefix, l.Bundle}
	if l.Collection != "" {
		parts = append(parts, l.Collection)
	}
	if l.Product != "" {
		parts = append(parts, l.Product)
	}
	return strings.Join(parts, ":")
}

// Level reports how specific the Lid is.
type Level int

const (
	BundleLevel Level = iota
	CollectionLevel
	ProductLevel
)

// Level returns which of bundle/collection/product this Lid names.
func (l Lid) Level() Level {
	if l.Product != "" {
		return ProductLevel
	}
	if l.Collection != "" {
		return CollectionLevel
	}
	return BundleLevel
}

// Vid is a major.minor PDS4 version identifier. Present is false when the
// source artifact carried a VID-shaped field that did not parse -- a
// syntactically-present-but-semantically-absent VID; callers should treat
// an absent Vid the same as a missing_vid_from_lidvid condition rather
// than comparing its zero fields.
type Vid struct {
	Major   int
	Minor   int
	present bool
}

// NewVid constructs a present Vid from explicit components.
func NewVid(major, minor int) Vid {
	return Vid{Major: major, Minor: minor, present: true}
}

// ParseVid parses "major.minor" into a Vid. A Vid that fails to parse is
// still returned (with Present() == false) rather than discarded, so
// callers that only care about presence don't need to special-case the
// error.
func ParseVid(s string) (Vid, error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return Vid{}, &MalformedIdentifierError{Value: s, Reason: "vid requires exactly one '.'"}
	}

	major, majErr := strconv.Atoi(parts[0])
	minor, minErr := strconv.Atoi(parts[1])
	if majErr != nil || minErr != nil || major < 0 || minor < 0 || parts[0] == "" || parts[1] == "" {
		return Vid{}, &MalformedIdentifierError{Value: s, Reason: "vid components must be non-negative integers"}
	}

	return Vid{Major: major, Minor: minor, present: true}, nil
}

// Present reports whether this Vid was successfully parsed from source.
func (v Vid) Present() bool {
	return v.present
}

// String renders "major.minor", or "" if the Vid is not present.
func (v Vid) String() string {
	if !v.present {
		return ""
	}
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Superseding reports whether this VID is anything other than the initial
// 1.0 release.
func (v Vid) Superseding() bool {
	return v.Major > 1 || v.Minor > 0
}

// Less implements the total order on VIDs: lexicographic on (major, minor).
func (v Vid) Less(other Vid) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Equal reports field-wise equality.
func (v Vid) Equal(other Vid) bool {
	return v.Major == other.Major && v.Minor == other.Minor && v.present == other.present
}

// IncMinor returns the (major, minor+1) increment.
func (v Vid) IncMinor() Vid {
	return Vid{Major: v.Major, Minor: v.Minor + 1, present: true}
}

// IncMajor returns the (major+1, 0) increment.
func (v Vid) IncMajor() Vid {
	return Vid{Major: v.Major + 1, Minor: 0, present: true}
}

// BumpRule restricts which kind of VID increment is legal for a given
// check; callers combine these to express "no no-op changes allowed" or
// "an increment is mandatory".
type BumpRule struct {
	Same  bool // candidate == prev is legal
	Minor bool // candidate == prev.IncMinor() is legal
	Major bool // candidate == prev.IncMajor() is legal
}

// AnyBump permits same, minor, or major -- used wherever no check further
// restricts the increment.
var AnyBump = BumpRule{Same: true, Minor: true, Major: true}

// MandatoryBump forbids a no-op change, requiring either a minor or major
// increment (used by V1b and V3).
var MandatoryBump = BumpRule{Minor: true, Major: true}

// LegalBump reports whether candidate is an allowed bump of prev under
// rule.
func LegalBump(prev, candidate Vid, rule BumpRule) bool {
	if rule.Same && candidate.Equal(prev) {
		return true
	}
	if rule.Minor && candidate.Equal(prev.IncMinor()) {
		return true
	}
	if rule.Major && candidate.Equal(prev.IncMajor()) {
		return true
	}
	return false
}

// LidVid is the fully-qualified, version-aware PDS4 identifier:
// LID::VID.
type LidVid struct {
	Lid Lid
	Vid Vid
}

// ParseLidVid splits s on the literal "::" into (lid, vid).
func ParseLidVid(s string) (LidVid, error) {
	idx := strings.Index(s, "::")
	if idx < 0 {
		return LidVid{}, &MalformedIdentifierError{Value: s, Reason: "lidvid requires a '::' separator"}
	}

	lid, err := ParseLid(s[:idx])
	if err != nil {
		return LidVid{}, err
	}

	vid, err := ParseVid(s[idx+2:])
	if err != nil {
		// A LIDVID with an unparseable VID is not a syntax failure at this
		// level; the VID's Present()==false is surfaced later as
		// missing_vid_from_lidvid (V6), not as MalformedIdentifier.
		return LidVid{Lid: lid, Vid: vid}, nil
	}

	return LidVid{Lid: lid, Vid: vid}, nil
}

// String renders "LID::VID".
func (lv LidVid) String() string {
	return lv.Lid.String() + "::" + lv.Vid.String()
}

// Equal reports pairwise equality of Lid and Vid.
func (lv LidVid) Equal(other LidVid) bool {
	return lv.Lid == other.Lid && lv.Vid.Equal(other.Vid)
}

// MalformedIdentifierError reports a LID/VID/LIDVID that failed to parse.
type MalformedIdentifierError struct {
	Value  string
	Reason string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("malformed identifier %q: %s", e.Value, e.Reason)
}
