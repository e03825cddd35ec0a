package unit

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/teranos/featsmith/errors"
	"github.com/teranos/featsmith/logger"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Unit is one on-disk package: a manifest plus one or more sources.
type Unit struct {
	Name     string
	Dir      string
	Manifest string
	Sources  []string // absolute or root-relative paths, sorted
}

// PrimarySource is the file a repair rewrites
func (u *Unit) PrimarySource() string {
	return u.Sources[0]
}

// Packager writes units in a fixed Layout.
type Packager struct {
	layout   Layout
	manifest Manifest
	logger   *zap.SugaredLogger
}

// NewPackager creates a packager. A nil logger disables logging.
func NewPackager(layout Layout, manifest Manifest, log *zap.SugaredLogger) *Packager {
	return &Packager{
		layout:   layout,
		manifest: manifest,
		logger:   logger.OrNop(log).Named("package"),
	}
}

// Package writes the manifest and sources into dir, creating it if needed.
// Packaging the same sources twice produces the same files. Every write
// failure is marked errors.ErrIOFailure.
func (p *Packager) Package(dir string, sources []string) (*Unit, error) {
	if len(sources) == 0 {
		return nil, errors.NewInvalidRequestError("unit %s has no sources", dir)
	}

	srcDir := filepath.Join(dir, p.layout.SourcesDir)
	if err := os.MkdirAll(srcDir, dirPerm); err != nil {
		return nil, errors.MarkIO(errors.Wrapf(err, "create %s", srcDir))
	}

	manifest, err := p.manifest.Encode()
	if err != nil {
		return nil, err
	}
	manifestPath := filepath.Join(dir, p.layout.Manifest)
	if err := os.WriteFile(manifestPath, manifest, filePerm); err != nil {
		return nil, errors.MarkIO(errors.Wrapf(err, "write %s", manifestPath))
	}

	u := &Unit{
		Name:     filepath.Base(dir),
		Dir:      dir,
		Manifest: manifestPath,
	}
	for i, code := range sources {
		path := filepath.Join(srcDir, p.layout.SourceName(i))
		if err := os.WriteFile(path, []byte(code), filePerm); err != nil {
			return nil, errors.MarkIO(errors.Wrapf(err, "write %s", path))
		}
		u.Sources = append(u.Sources, path)
	}

	p.logger.Infow("Packaged unit",
		logger.FieldUnit, u.Name,
		logger.FieldDir, dir,
		logger.FieldCount, len(sources))
	return u, nil
}

// Rewrite replaces the content of one source file in place
func Rewrite(path, code string) error {
	if err := os.WriteFile(path, []byte(code), filePerm); err != nil {
		return errors.MarkIO(errors.Wrapf(err, "rewrite %s", path))
	}
	return nil
}
