// Package unit writes generated sources as on-disk Move packages and finds
// them again for the checkers.
package unit

import (
	"fmt"
	"path/filepath"
)

// Layout is the on-disk shape of a unit, shared by the packager, discovery
// and both checkers.
type Layout struct {
	Manifest   string // manifest file name in the unit root
	SourcesDir string // directory holding the sources
	Extension  string // source file extension, with the dot
	FilePrefix string // source file name prefix
	BuildDir   string // compiler output directory, never scanned
}

// DefaultLayout is the Move package layout
func DefaultLayout() Layout {
	return Layout{
		Manifest:   "Move.toml",
		SourcesDir: "sources",
		Extension:  ".move",
		FilePrefix: "Test_",
		BuildDir:   "build",
	}
}

// SourceName returns the file name of the i-th source, e.g. Test_0.move
func (l Layout) SourceName(i int) string {
	return fmt.Sprintf("%s%d%s", l.FilePrefix, i, l.Extension)
}

// SourceGlob returns the pattern matching a unit's sources, relative to the unit root
func (l Layout) SourceGlob() string {
	return filepath.Join(l.SourcesDir, "*"+l.Extension)
}
