package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

type Format string

const (
	FormatAPK     Format = "apk"
	FormatBundle  Format = "bundle"
	FormatUnknown Format = "unknown"
)

// FormatFromPath guesses the binary format from the file extension.
func FormatFromPath(path string) Format {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".apk"):
		return FormatAPK
	case strings.HasSuffix(lower, ".aab"):
		return FormatBundle
	default:
		return FormatUnknown
	}
}

// ArtifactMetadata is what the metadata reader extracts from one binary.
type ArtifactMetadata struct {
	ApplicationID      string `json:"application_id"`
	VersionCode        int64  `json:"version_code"`
	MinPlatformVersion string `json:"min_platform_version"`
	Format             Format `json:"format"`
}

// UploadCandidate is a binary found in the workspace and scheduled for
// upload in the current run.
type UploadCandidate struct {
	Path        string
	Metadata    ArtifactMetadata
	MappingFile string

	hash string
}

// Hash returns the lowercase hex SHA-256 of the candidate's contents. The
// file is read once; later calls return the cached value.
func (c *UploadCandidate) Hash(open func(path string) (io.ReadCloser, error)) (string, error) {
	if c.hash != "" {
		return c.hash, nil
	}

	f, err := open(c.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", c.Path, err)
	}
	c.hash = hex.EncodeToString(hasher.Sum(nil))
	return c.hash, nil
}

// RemoteBinary is an APK or bundle as reported by the publishing service.
type RemoteBinary struct {
	VersionCode int64  `json:"version_code"`
	SHA256      string `json:"sha256"`
	Format      Format `json:"format"`
}
