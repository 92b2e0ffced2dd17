package domain

import "sort"

type ExpansionType string

const (
	ExpansionMain  ExpansionType = "main"
	ExpansionPatch ExpansionType = "patch"
)

// ExpansionTypes lists the types in the order they are handled.
var ExpansionTypes = []ExpansionType{ExpansionMain, ExpansionPatch}

// ExpansionFile is a local OBB file whose name has been classified.
type ExpansionFile struct {
	Type          ExpansionType
	VersionCode   int64
	ApplicationID string
	Path          string
}

type ExpansionFileSet struct {
	Main  *ExpansionFile
	Patch *ExpansionFile
}

func (s *ExpansionFileSet) Get(t ExpansionType) *ExpansionFile {
	if s == nil {
		return nil
	}
	if t == ExpansionMain {
		return s.Main
	}
	return s.Patch
}

// ExpansionFiles groups expansion files by the version code they belong to.
type ExpansionFiles map[int64]*ExpansionFileSet

func (e ExpansionFiles) Add(f ExpansionFile) {
	set, ok := e[f.VersionCode]
	if !ok {
		set = &ExpansionFileSet{}
		e[f.VersionCode] = set
	}
	file := f
	if f.Type == ExpansionMain {
		set.Main = &file
	} else {
		set.Patch = &file
	}
}

func (e ExpansionFiles) VersionCodes() []int64 {
	codes := make([]int64, 0, len(e))
	for vc := range e {
		codes = append(codes, vc)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// RemoteExpansionFile is the service's view of an expansion file slot. A
// file that merely points at another version's upload has a non-zero
// ReferencesVersion and no size of its own.
type RemoteExpansionFile struct {
	FileSize          int64
	ReferencesVersion int64
}

// IsReal reports whether the slot holds uploaded bytes rather than a reference.
func (f *RemoteExpansionFile) IsReal() bool {
	return f != nil && f.FileSize > 0 && f.ReferencesVersion == 0
}
