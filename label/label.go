// Package label reads PDS4 XML labels into typed ProductLabel records.
// The reader is a pure function of the label's bytes: it never invents
// values for missing optional children, and two reads of identical bytes
// always produce an identical checksum.
package label

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"io"
	"os"

	"github.com/pkg/errors"

	"pds4delta/ident"
)

// ModificationDetail is a single entry in a label's modification history.
type ModificationDetail struct {
	VersionID         string
	ModificationDate  string
	Description       string
}

// Equal reports field-wise equality.
func (d ModificationDetail) Equal(other ModificationDetail) bool {
	return d.VersionID == other.VersionID &&
		d.ModificationDate == other.ModificationDate &&
		d.Description == other.Description
}

// ModificationHistory is an ordered sequence of ModificationDetail.
type ModificationHistory struct {
	Details []ModificationDetail
}

// HasVersion reports whether version appears as a VersionID among the
// history's details.
func (h *ModificationHistory) HasVersion(version string) bool {
	if h == nil {
		return false
	}
	for _, d := range h.Details {
		if d.VersionID == version {
			return true
		}
	}
	return false
}

// ReferenceKind distinguishes a LID-only reference from a fully-qualified
// LIDVID reference within a BundleMemberEntry.
type ReferenceKind int

const (
	ReferenceLid ReferenceKind = iota
	ReferenceLidVid
)

// BundleMemberEntry names a collection referenced from a bundle label. At
// least one of the Lid/LidVid arms is populated, selected by Kind.
type BundleMemberEntry struct {
	MemberStatus  string
	ReferenceType string
	Kind          ReferenceKind
	Lid           ident.Lid
	LidVid        ident.LidVid
}

// EffectiveLidVid returns the parsed LidVid carried by this entry: the
// LidVid reference directly if present, otherwise the LidVid parsed from
// the Lid-only reference (whose Vid may be absent -- see ident.Vid.Present).
func (e BundleMemberEntry) EffectiveLidVid() ident.LidVid {
	if e.Kind == ReferenceLidVid {
		return e.LidVid
	}
	return ident.LidVid{Lid: e.Lid}
}

// FileAreaFile names a single sibling data file referenced by a label's
// File_Area.
type FileAreaFile struct {
	FileName string
}

// IdentificationArea carries the parts of a label common to every PDS4
// product type.
type IdentificationArea struct {
	LidVid              ident.LidVid
	CollectionComponent string
	ModificationHistory *ModificationHistory
}

// ContextArea and DisciplineArea are carried opaquely: this system never
// inspects their contents, only whether they are present.
type ContextArea struct{ Present bool }
type DisciplineArea struct{ Present bool }

// DocumentEdition is one Document_Edition entry, naming the files that
// make up that edition.
type DocumentEdition struct {
	Files []FileAreaFile
}

// Document carries a label's ordered document editions, if any.
type Document struct {
	Editions []DocumentEdition
}

// ProductKind tags which of the three PDS4 node types a label describes.
type ProductKind int

const (
	KindBundle ProductKind = iota
	KindCollection
	KindBasicProduct
)

// ProductLabel is the typed result of decoding a PDS4 XML label.
type ProductLabel struct {
	Checksum            string // md5 hex of the label's raw bytes
	Kind                ProductKind
	RootElement         string
	IdentificationArea  IdentificationArea
	ContextArea         *ContextArea
	DisciplineArea      *DisciplineArea
	FileAreas           []FileAreaFile
	Document            *Document
	BundleMemberEntries []BundleMemberEntry
}

// UnknownProductTypeError reports an XML root element this reader does
// not recognize.
type UnknownProductTypeError struct {
	RootElement string
}

func (e *UnknownProductTypeError) Error() string {
	return "unknown product type: " + e.RootElement
}

// xmlEnvelope captures just enough raw structure of a PDS4 label to
// extract the fields ProductLabel needs, regardless of which of the six
// recognized root elements is present. Optional children that are absent
// from the XML decode to their Go zero value -- the reader never invents
// substitutes.
type xmlEnvelope struct {
	XMLName xml.Name `xml:""`

	IdentificationArea struct {
		LogicalIdentifier    string `xml:"logical_identifier"`
		VersionID            string `xml:"version_id"`
		CollectionComponent  string `xml:"http://pds.nasa.gov/pds4/pds/v1 collection"`
		ModificationHistory *struct {
			ModificationDetail []struct {
				VersionID        string `xml:"version_id"`
				ModificationDate string `xml:"modification_date"`
				Description      string `xml:"description"`
			} `xml:"Modification_Detail"`
		} `xml:"Modification_History"`
	} `xml:"Identification_Area"`

	ContextArea    *struct{} `xml:"Context_Area"`
	DisciplineArea *struct{} `xml:"Discipline_Area"`

	FileAreaObservational []struct {
		File struct {
			FileName string `xml:"file_name"`
		} `xml:"File"`
	} `xml:"File_Area_Observational"`
	FileAreaAncillary []struct {
		File struct {
			FileName string `xml:"file_name"`
		} `xml:"File"`
	} `xml:"File_Area_Ancillary"`
	FileAreaInventory []struct {
		File struct {
			FileName string `xml:"file_name"`
		} `xml:"File"`
	} `xml:"File_Area_Inventory"`

	Document *struct {
		DocumentEdition []struct {
			DocumentFile []struct {
				FileName string `xml:"file_name"`
			} `xml:"Document_File"`
		} `xml:"Document_Edition"`
	} `xml:"Document"`

	BundleMemberEntry []struct {
		LidReference    string `xml:"lid_reference"`
		LidVidReference string `xml:"lidvid_reference"`
		MemberStatus    string `xml:"member_status"`
		ReferenceType   string `xml:"reference_type"`
	} `xml:"Bundle_Member_Entry"`
}

var rootKinds = map[string]ProductKind{
	"Product_Bundle":        KindBundle,
	"Product_Collection":    KindCollection,
	"Product_Observational": KindBasicProduct,
	"Product_Ancillary":     KindBasicProduct,
	"Product_Document":      KindBasicProduct,
	"Product_Context":       KindBasicProduct,
}

// Read decodes the label file at path into a ProductLabel, alongside the
// MD5 hex digest of its raw bytes.
func Read(path string) (*ProductLabel, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrapf(err, "could not open label at %s", path)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads all of r and parses it as a PDS4 label.
func Decode(r io.Reader) (*ProductLabel, string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not read label bytes")
	}

	sum := md5.Sum(raw)
	checksum := hex.EncodeToString(sum[:])

	var env xmlEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, "", errors.Wrap(err, "could not decode label xml")
	}

	kind, ok := rootKinds[env.XMLName.Local]
	if !ok {
		return nil, "", &UnknownProductTypeError{RootElement: env.XMLName.Local}
	}

	out := &ProductLabel{
		Checksum:    checksum,
		Kind:        kind,
		RootElement: env.XMLName.Local,
	}

	lid, lidErr := ident.ParseLid(env.IdentificationArea.LogicalIdentifier)
	if lidErr != nil {
		return nil, "", errors.Wrapf(lidErr, "label at identification area")
	}
	vid, _ := ident.ParseVid(env.IdentificationArea.VersionID)

	out.IdentificationArea = IdentificationArea{
		LidVid:              ident.LidVid{Lid: lid, Vid: vid},
		CollectionComponent: env.IdentificationArea.CollectionComponent,
	}

	if env.IdentificationArea.ModificationHistory != nil {
		hist := &ModificationHistory{}
		for _, d := range env.IdentificationArea.ModificationHistory.ModificationDetail {
			hist.Details = append(hist.Details, ModificationDetail{
				VersionID:        d.VersionID,
				ModificationDate: d.ModificationDate,
				Description:      d.Description,
			})
		}
		out.IdentificationArea.ModificationHistory = hist
	}

	if env.ContextArea != nil {
		out.ContextArea = &ContextArea{Present: true}
	}
	if env.DisciplineArea != nil {
		out.DisciplineArea = &DisciplineArea{Present: true}
	}

	for _, fa := range env.FileAreaObservational {
		out.FileAreas = append(out.FileAreas, FileAreaFile{FileName: fa.File.FileName})
	}
	for _, fa := range env.FileAreaAncillary {
		out.FileAreas = append(out.FileAreas, FileAreaFile{FileName: fa.File.FileName})
	}
	for _, fa := range env.FileAreaInventory {
		out.FileAreas = append(out.FileAreas, FileAreaFile{FileName: fa.File.FileName})
	}

	if env.Document != nil {
		doc := &Document{}
		for _, ed := range env.Document.DocumentEdition {
			var files []FileAreaFile
			for _, f := range ed.DocumentFile {
				files = append(files, FileAreaFile{FileName: f.FileName})
			}
			doc.Editions = append(doc.Editions, DocumentEdition{Files: files})
		}
		out.Document = doc
	}

	for _, e := range env.BundleMemberEntry {
		entry := BundleMemberEntry{
			MemberStatus:  e.MemberStatus,
			ReferenceType: e.ReferenceType,
		}
		switch {
		case e.LidVidReference != "":
			lv, err := ident.ParseLidVid(e.LidVidReference)
			if err != nil {
				return nil, "", errors.Wrapf(err, "bundle member entry lidvid_reference")
			}
			entry.Kind = ReferenceLidVid
			entry.LidVid = lv
		case e.LidReference != "":
			l, err := ident.ParseLid(e.LidReference)
			if err != nil {
				return nil, "", errors.Wrapf(err, "bundle member entry lid_reference")
			}
			entry.Kind = ReferenceLid
			entry.Lid = l
		}
		out.BundleMemberEntries = append(out.BundleMemberEntries, entry)
	}

	return out, checksum, nil
}

// InventoryFileName returns the sibling inventory CSV's filename, as
// declared by this (collection) label's first File_Area entry, and
// whether one was present.
func (p *ProductLabel) InventoryFileName() (string, bool) {
	if len(p.FileAreas) == 0 {
		return "", false
	}
	return p.FileAreas[0].FileName, true
}
