package release

import "slices"

// Default set names. Order matters: it is both the fetch and the extraction order.
var (
	//nolint:gochecknoglobals // Fixed distribution layout.
	defaultMandatory = []string{"comp", "game", "man", "base"}
	//nolint:gochecknoglobals // Fixed distribution layout.
	defaultExtended = []string{"xbase", "xshare", "xfont", "xserv"}
)

// DocumentationSet is the mandatory set after which the extended group is interleaved.
const DocumentationSet = "man"

// ArtifactSet is the ordered list of installable sets of a release.
type ArtifactSet struct {
	// Mandatory sets are always fetched and extracted, in this order.
	Mandatory []string
	// Extended sets (X11) are optional and keep their relative order.
	Extended []string
	// InsertAfter names the mandatory set the extended group follows.
	InsertAfter string
}

// DefaultArtifactSet returns the standard base and X11 sets.
func DefaultArtifactSet() ArtifactSet {
	return ArtifactSet{
		Mandatory:   slices.Clone(defaultMandatory),
		Extended:    slices.Clone(defaultExtended),
		InsertAfter: DocumentationSet,
	}
}

// Ordered returns the set names in extraction order. With includeExtended the
// extended group is placed right after InsertAfter; if InsertAfter is absent it
// goes before the last mandatory set.
func (a ArtifactSet) Ordered(includeExtended bool) []string {
	if !includeExtended || len(a.Extended) == 0 {
		return slices.Clone(a.Mandatory)
	}

	at := slices.Index(a.Mandatory, a.InsertAfter) + 1
	if at == 0 {
		at = max(len(a.Mandatory)-1, 0)
	}

	ordered := make([]string, 0, len(a.Mandatory)+len(a.Extended))
	ordered = append(ordered, a.Mandatory[:at]...)
	ordered = append(ordered, a.Extended...)
	ordered = append(ordered, a.Mandatory[at:]...)

	return ordered
}

// IsExtended reports whether name belongs to the extended group.
func (a ArtifactSet) IsExtended(name string) bool {
	return slices.Contains(a.Extended, name)
}

// Archives maps Ordered to archive file names for version.
func (a ArtifactSet) Archives(version string, includeExtended bool) []string {
	sets := a.Ordered(includeExtended)

	archives := make([]string, 0, len(sets))
	for _, set := range sets {
		archives = append(archives, ArchiveName(set, version))
	}

	return archives
}
