// Package labeledit performs the two in-place XML text patches the
// supersede engine needs: injecting Bundle_Member_Entry children into a
// bundle label, and patching a collection label's records/file_size/
// md5_checksum leaves after its inventory has been rewritten. Both
// operations edit text directly rather than unmarshal-then-remarshal, to
// preserve pretty-printing and the PDS namespace prefixes byte-for-byte
// outside the patched regions -- something a generic XML encoder does not
// guarantee.
package labeledit

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"pds4delta/internal/fsutil"
	"pds4delta/label"
)

// MemberEntry is the minimal shape labeledit needs to render an injected
// Bundle_Member_Entry: a fully-qualified reference plus the two
// accompanying status fields.
type MemberEntry struct {
	LidVidReference string
	MemberStatus    string
	ReferenceType   string
}

var bundleCloseTag = regexp.MustCompile(`(?s)([ \t]*)(</(?:pds:)?Product_Bundle>)`)

// InjectBundleMemberEntries appends a Bundle_Member_Entry child for each
// given entry to the single Product_Bundle root found in the file at
// labelPath, rewriting the file in place.
func InjectBundleMemberEntries(labelPath string, entries []MemberEntry) error {
	if len(entries) == 0 {
		return nil
	}

	raw, err := os.ReadFile(labelPath)
	if err != nil {
		return errors.Wrapf(err, "could not read bundle label %s", labelPath)
	}

	loc := bundleCloseTag.FindSubmatchIndex(raw)
	if loc == nil {
		return errors.Errorf("no Product_Bundle closing tag found in %s", labelPath)
	}
	indent := string(raw[loc[2]:loc[3]])
	closeStart := loc[0]

	// Injected elements carry the same namespace prefix as the root.
	prefix := ""
	if strings.HasPrefix(string(raw[loc[4]:loc[5]]), "</pds:") {
		prefix = "pds:"
	}

	var block strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&block, "%s<%sBundle_Member_Entry>\n", indent, prefix)
		fmt.Fprintf(&block, "%s    <%slidvid_reference>%s</%slidvid_reference>\n", indent, prefix, e.LidVidReference, prefix)
		fmt.Fprintf(&block, "%s    <%smember_status>%s</%smember_status>\n", indent, prefix, e.MemberStatus, prefix)
		fmt.Fprintf(&block, "%s    <%sreference_type>%s</%sreference_type>\n", indent, prefix, e.ReferenceType, prefix)
		fmt.Fprintf(&block, "%s</%sBundle_Member_Entry>\n", indent, prefix)
	}

	patched := make([]byte, 0, len(raw)+block.Len())
	patched = append(patched, raw[:closeStart]...)
	patched = append(patched, []byte(block.String())...)
	patched = append(patched, raw[closeStart:]...)

	_, err = fsutil.WriteString(labelPath, string(patched))
	return errors.Wrapf(err, "could not write patched bundle label %s", labelPath)
}

// MemberEntriesFrom converts label.BundleMemberEntry values (already
// patched to carry a LidVid reference, per validate.PatchBundleMemberEntries)
// into the MemberEntry shape this package renders.
func MemberEntriesFrom(entries []label.BundleMemberEntry) []MemberEntry {
	out := make([]MemberEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, MemberEntry{
			LidVidReference: e.EffectiveLidVid().String(),
			MemberStatus:    e.MemberStatus,
			ReferenceType:   e.ReferenceType,
		})
	}
	return out
}

func elementPattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)(<pds:` + name + `>)(.*?)(</pds:` + name + `>)`)
}

var (
	recordsPattern     = elementPattern("records")
	fileSizePattern    = elementPattern("file_size")
	md5ChecksumPattern = elementPattern("md5_checksum")
)

// PatchCollectionLabel reads the collection label at srcLabel, replaces
// the text content of pds:records, pds:file_size and pds:md5_checksum,
// and writes the result to destLabel.
func PatchCollectionLabel(srcLabel, destLabel string, records int, fileSize int64, md5Hex string) error {
	raw, err := os.ReadFile(srcLabel)
	if err != nil {
		return errors.Wrapf(err, "could not read collection label %s", srcLabel)
	}

	text := string(raw)
	text = replaceElementText(recordsPattern, text, fmt.Sprintf("%d", records))
	text = replaceElementText(fileSizePattern, text, fmt.Sprintf("%d", fileSize))
	text = replaceElementText(md5ChecksumPattern, text, md5Hex)

	_, err = fsutil.WriteString(destLabel, text)
	return errors.Wrapf(err, "could not write patched collection label %s", destLabel)
}

// replaceElementText substitutes the text content captured by pattern's
// middle group with value, leaving the surrounding open/close tags
// untouched. It is a no-op if the element is absent.
func replaceElementText(pattern *regexp.Regexp, text, value string) string {
	loc := pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return text
	}
	// loc indices: [fullStart fullEnd g1Start g1End g2Start g2End g3Start g3End]
	return text[:loc[2]] + text[loc[2]:loc[3]] + value + text[loc[6]:loc[7]] + text[loc[7]:]
}
