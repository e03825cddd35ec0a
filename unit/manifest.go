package unit

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/featsmith/errors"
)

// Manifest is the package manifest written into every unit
type Manifest struct {
	Package PackageInfo `toml:"package"`
}

// PackageInfo is the [package] table
type PackageInfo struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// NewManifest validates name and version
func NewManifest(name, version string) (Manifest, error) {
	if name == "" {
		return Manifest{}, errors.NewInvalidRequestError("package name is empty")
	}
	if _, err := semver.StrictNewVersion(version); err != nil {
		return Manifest{}, errors.Mark(
			errors.Wrapf(err, "package version %q", version),
			errors.ErrInvalidRequest,
		)
	}
	return Manifest{Package: PackageInfo{Name: name, Version: version}}, nil
}

// DefaultManifest is [package] name = "test", version = "0.0.0"
func DefaultManifest() Manifest {
	return Manifest{Package: PackageInfo{Name: "test", Version: "0.0.0"}}
}

// Encode renders the manifest as TOML
func (m Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "encode manifest")
	}
	return buf.Bytes(), nil
}

// ReadManifest decodes the manifest at path
func ReadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, errors.Wrapf(err, "read manifest %s", path)
	}
	return &m, nil
}
