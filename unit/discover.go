package unit

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/teranos/featsmith/errors"
)

// Invalid is a directory that has a manifest but cannot be checked
type Invalid struct {
	Dir string
	Err error
}

// Discover walks root and returns every directory holding a manifest, sorted
// by path. Directories with a manifest but no sources are returned as
// Invalid, marked errors.ErrPreconditionViolation. Build output directories
// and hidden directories are skipped.
func Discover(root string, layout Layout) ([]*Unit, []Invalid, error) {
	if err := checkRoot(root); err != nil {
		return nil, nil, err
	}

	var units []*Unit
	var invalid []Invalid

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name(), layout) {
			return filepath.SkipDir
		}

		manifest := filepath.Join(path, layout.Manifest)
		if _, err := os.Stat(manifest); err != nil {
			return nil
		}

		sources, err := filepath.Glob(filepath.Join(path, layout.SourceGlob()))
		if err != nil {
			return errors.Wrapf(err, "glob sources in %s", path)
		}
		sources = regularFiles(sources)
		if len(sources) == 0 {
			invalid = append(invalid, Invalid{
				Dir: path,
				Err: errors.Mark(
					errors.Newf("unit %s has a manifest but no %s", path, layout.SourceGlob()),
					errors.ErrPreconditionViolation,
				),
			})
			return nil
		}

		sort.Strings(sources)
		units = append(units, &Unit{
			Name:     filepath.Base(path),
			Dir:      path,
			Manifest: manifest,
			Sources:  sources,
		})
		return nil
	})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "discover units under %s", root)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].Dir < units[j].Dir })
	sort.Slice(invalid, func(i, j int) bool { return invalid[i].Dir < invalid[j].Dir })
	return units, invalid, nil
}

// SourceFiles returns every source file that sits directly in a sources
// directory anywhere under root, sorted by path.
func SourceFiles(root string, layout Layout) ([]string, error) {
	if err := checkRoot(root); err != nil {
		return nil, err
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name(), layout) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if filepath.Ext(path) == layout.Extension && filepath.Base(filepath.Dir(path)) == layout.SourcesDir {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list sources under %s", root)
	}

	sort.Strings(files)
	return files, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return errors.MarkFileNotFound(errors.Wrapf(err, "output directory %s", root))
	}
	if !info.IsDir() {
		return errors.Mark(errors.Newf("%s is not a directory", root), errors.ErrPreconditionViolation)
	}
	return nil
}

func skipDir(name string, layout Layout) bool {
	return (layout.BuildDir != "" && name == layout.BuildDir) || strings.HasPrefix(name, ".")
}

func regularFiles(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}
