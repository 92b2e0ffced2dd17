// Package apkmeta reads application id, version code and minimum SDK
// version from APK and Android App Bundle files.
package apkmeta

import (
	"fmt"
	"strconv"

	"github.com/shogo82148/androidbinary/apk"

	"github.com/CaioWing/apkharbor/internal/domain"
)

type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

// Read dispatches on the file extension.
func (r *Reader) Read(path string) (domain.ArtifactMetadata, error) {
	switch domain.FormatFromPath(path) {
	case domain.FormatAPK:
		return readAPK(path)
	case domain.FormatBundle:
		return readBundle(path)
	default:
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: %s is neither an APK nor an AAB file", domain.ErrDiscovery, path)
	}
}

// apkManifest is the part of a parsed APK that metadata is taken from.
type apkManifest interface {
	PackageName() string
	VersionCode() (int32, error)
	MinSDK() (int32, error)
}

type openedAPK struct {
	pkg *apk.Apk
}

func (a openedAPK) PackageName() string {
	return a.pkg.PackageName()
}

func (a openedAPK) VersionCode() (int32, error) {
	return a.pkg.Manifest().VersionCode.Int32()
}

func (a openedAPK) MinSDK() (int32, error) {
	return a.pkg.Manifest().SDK.Min.Int32()
}

func readAPK(path string) (domain.ArtifactMetadata, error) {
	pkg, err := apk.OpenFile(path)
	if err != nil {
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: read APK %s: %v", domain.ErrDiscovery, path, err)
	}
	defer pkg.Close()

	return apkMetadata(path, openedAPK{pkg: pkg})
}

func apkMetadata(path string, m apkManifest) (domain.ArtifactMetadata, error) {
	versionCode, err := m.VersionCode()
	if err != nil {
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: APK %s has no readable versionCode: %v", domain.ErrDiscovery, path, err)
	}

	meta := domain.ArtifactMetadata{
		ApplicationID: m.PackageName(),
		VersionCode:   int64(versionCode),
		Format:        domain.FormatAPK,
	}
	if minSDK, err := m.MinSDK(); err == nil {
		meta.MinPlatformVersion = strconv.Itoa(int(minSDK))
	}
	if meta.ApplicationID == "" {
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: APK %s has no package name", domain.ErrDiscovery, path)
	}
	return meta, nil
}
