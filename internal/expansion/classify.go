// Package expansion classifies APK expansion (OBB) files by name.
package expansion

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/CaioWing/apkharbor/internal/domain"
)

// Expansion files must be named <main|patch>.<version code>.<application id>.obb
var obbPattern = regexp.MustCompile(`^(?i:(main|patch))\.(\d+)\.([._a-zA-Z0-9]+)\.obb$`)

// Classify parses the base name of path into its type, version code and
// application id.
func Classify(path string) (domain.ExpansionFile, error) {
	name := filepath.Base(filepath.ToSlash(path))
	m := obbPattern.FindStringSubmatch(name)
	if m == nil {
		return domain.ExpansionFile{}, fmt.Errorf("%w: %q does not match <main|patch>.<version code>.<application id>.obb", domain.ErrInvalidNaming, name)
	}

	vc, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return domain.ExpansionFile{}, fmt.Errorf("%w: %q has an out of range version code", domain.ErrInvalidNaming, name)
	}

	return domain.ExpansionFile{
		Type:          domain.ExpansionType(strings.ToLower(m[1])),
		VersionCode:   vc,
		ApplicationID: m[3],
		Path:          path,
	}, nil
}

// Group classifies every path and checks it against the run: the embedded
// application id must be applicationID and the version code must be one of
// versionCodes. When reuse is false every patch file needs a main file for
// the same version code.
func Group(paths []string, applicationID string, versionCodes []int64, reuse bool) (domain.ExpansionFiles, error) {
	uploading := make(map[int64]bool, len(versionCodes))
	for _, vc := range versionCodes {
		uploading[vc] = true
	}

	files := domain.ExpansionFiles{}
	for _, p := range paths {
		f, err := Classify(p)
		if err != nil {
			return nil, err
		}
		if f.ApplicationID != applicationID {
			return nil, fmt.Errorf("%w: %s is for application %s, but this run uploads %s",
				domain.ErrInvalidNaming, p, f.ApplicationID, applicationID)
		}
		if !uploading[f.VersionCode] {
			return nil, fmt.Errorf("%w: %s is for version code %d, which is not being uploaded",
				domain.ErrInvalidNaming, p, f.VersionCode)
		}
		if existing := files[f.VersionCode].Get(f.Type); existing != nil {
			return nil, fmt.Errorf("%w: both %s and %s are %s files for version code %d",
				domain.ErrInvalidNaming, existing.Path, p, f.Type, f.VersionCode)
		}
		files.Add(f)
	}

	if !reuse {
		for _, vc := range files.VersionCodes() {
			set := files[vc]
			if set.Patch != nil && set.Main == nil {
				return nil, fmt.Errorf("%w: patch expansion file %s has no main expansion file and reusing previous expansion files is disabled",
					domain.ErrDiscovery, set.Patch.Path)
			}
		}
	}

	return files, nil
}
