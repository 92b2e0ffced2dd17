package apkmeta

import (
	"archive/zip"
	"fmt"
	"io"
	"strconv"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/CaioWing/apkharbor/internal/domain"
)

const bundleManifestPath = "base/manifest/AndroidManifest.xml"

const androidNamespace = "http://schemas.android.com/apk/res/android"

// Field numbers of the aapt2 proto XML format (Resources.proto).
const (
	xmlNodeElement = 1

	xmlElementNamespaceURI = 2
	xmlElementName         = 3
	xmlElementAttribute    = 4
	xmlElementChild        = 5

	xmlAttributeNamespaceURI = 1
	xmlAttributeName         = 2
	xmlAttributeValue        = 3
	xmlAttributeCompiledItem = 6

	itemPrim = 7

	primIntDecimal     = 6
	primIntHexadecimal = 7
)

func readBundle(path string) (domain.ArtifactMetadata, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return domain.ArtifactMetadata{}, fmt.Errorf("%w: open AAB %s: %v", domain.ErrDiscovery, path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != bundleManifestPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return domain.ArtifactMetadata{}, fmt.Errorf("%w: open manifest in %s: %v", domain.ErrDiscovery, path, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return domain.ArtifactMetadata{}, fmt.Errorf("%w: read manifest in %s: %v", domain.ErrDiscovery, path, err)
		}

		meta, err := ParseBundleManifest(data)
		if err != nil {
			return domain.ArtifactMetadata{}, fmt.Errorf("%w: AAB %s: %v", domain.ErrDiscovery, path, err)
		}
		return meta, nil
	}

	return domain.ArtifactMetadata{}, fmt.Errorf("%w: AAB %s has no %s", domain.ErrDiscovery, path, bundleManifestPath)
}

// ParseBundleManifest decodes a proto-encoded AndroidManifest.xml as found
// in the base module of an app bundle.
func ParseBundleManifest(data []byte) (domain.ArtifactMetadata, error) {
	root, err := parseFields(data)
	if err != nil {
		return domain.ArtifactMetadata{}, err
	}
	manifest, err := root.message(xmlNodeElement)
	if err != nil || manifest == nil {
		return domain.ArtifactMetadata{}, fmt.Errorf("manifest has no root element")
	}
	if name := manifest.str(xmlElementName); name != "manifest" {
		return domain.ArtifactMetadata{}, fmt.Errorf("unexpected root element %q", name)
	}

	meta := domain.ArtifactMetadata{Format: domain.FormatBundle}
	attrs, err := manifest.messages(xmlElementAttribute)
	if err != nil {
		return domain.ArtifactMetadata{}, err
	}
	for _, attr := range attrs {
		switch attr.str(xmlAttributeName) {
		case "package":
			meta.ApplicationID = attr.str(xmlAttributeValue)
		case "versionCode":
			if attr.str(xmlAttributeNamespaceURI) != androidNamespace {
				continue
			}
			vc, err := attr.intValue()
			if err != nil {
				return domain.ArtifactMetadata{}, fmt.Errorf("versionCode: %w", err)
			}
			meta.VersionCode = vc
		}
	}

	children, err := manifest.messages(xmlElementChild)
	if err != nil {
		return domain.ArtifactMetadata{}, err
	}
	for _, child := range children {
		el, err := child.message(xmlNodeElement)
		if err != nil || el == nil || el.str(xmlElementName) != "uses-sdk" {
			continue
		}
		childAttrs, err := el.messages(xmlElementAttribute)
		if err != nil {
			continue
		}
		for _, attr := range childAttrs {
			if attr.str(xmlAttributeName) == "minSdkVersion" {
				if v, err := attr.intValue(); err == nil {
					meta.MinPlatformVersion = strconv.FormatInt(v, 10)
				} else {
					meta.MinPlatformVersion = attr.str(xmlAttributeValue)
				}
			}
		}
	}

	if meta.ApplicationID == "" {
		return domain.ArtifactMetadata{}, fmt.Errorf("manifest has no package attribute")
	}
	if meta.VersionCode == 0 {
		return domain.ArtifactMetadata{}, fmt.Errorf("manifest has no versionCode attribute")
	}
	return meta, nil
}

type protoValue struct {
	bytes  []byte
	varint uint64
}

type protoFields map[protowire.Number][]protoValue

func parseFields(b []byte) (protoFields, error) {
	fields := protoFields{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		var v protoValue
		switch typ {
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			v.bytes = val
			b = b[n:]
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			v.varint = val
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		fields[num] = append(fields[num], v)
	}
	return fields, nil
}

func (f protoFields) str(num protowire.Number) string {
	vals := f[num]
	if len(vals) == 0 {
		return ""
	}
	return string(vals[len(vals)-1].bytes)
}

func (f protoFields) message(num protowire.Number) (protoFields, error) {
	vals := f[num]
	if len(vals) == 0 {
		return nil, nil
	}
	return parseFields(vals[len(vals)-1].bytes)
}

func (f protoFields) messages(num protowire.Number) ([]protoFields, error) {
	out := make([]protoFields, 0, len(f[num]))
	for _, v := range f[num] {
		m, err := parseFields(v.bytes)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// intValue reads an integer attribute from its string value, falling back
// to the compiled primitive.
func (f protoFields) intValue() (int64, error) {
	if s := f.str(xmlAttributeValue); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", s)
		}
		return v, nil
	}

	item, err := f.message(xmlAttributeCompiledItem)
	if err != nil || item == nil {
		return 0, fmt.Errorf("attribute has no value")
	}
	prim, err := item.message(itemPrim)
	if err != nil || prim == nil {
		return 0, fmt.Errorf("attribute has no primitive value")
	}
	for _, num := range []protowire.Number{primIntDecimal, primIntHexadecimal} {
		if vals := prim[num]; len(vals) > 0 {
			return int64(int32(vals[len(vals)-1].varint)), nil
		}
	}
	return 0, fmt.Errorf("attribute is not an integer")
}
