// Package requirements reads resolved requirement sets from disk.
//
// Two formats are understood:
//
//   - requirements.txt style files, as produced by pip-compile or
//     "uv pip compile": pinned specifiers, direct references, local paths,
//     -e editables, --hash options and -f/--find-links directories
//   - PEP 751 lock files (pylock.toml), which pin the artifact URL and
//     hashes of every package
//
// The engine consumes the result as-is; nothing here resolves versions.
package requirements

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// ParseFile reads path, choosing the format by file name: *.toml is a lock
// file, anything else a requirements file. Relative paths inside the file
// resolve against its directory.
func ParseFile(path string) ([]dist.Requirement, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "%s", path)
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "requirements file %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "open %s", path)
	}
	defer f.Close()

	base := filepath.Dir(abs)
	if strings.HasSuffix(strings.ToLower(abs), ".toml") {
		return ParseLock(f, base)
	}
	return ParseRequirementsTxt(f, base)
}

// localSource classifies a filesystem path as an archive or a source tree.
func localSource(path string, editable bool) (dist.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return dist.Source{}, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "local requirement %s", path)
	}
	switch {
	case editable:
		if !info.IsDir() {
			return dist.Source{}, errors.New(errors.ErrCodeInvalidRequirement, "editable %s is not a directory", path)
		}
		return dist.Source{Kind: dist.SourceEditable, Path: path}, nil
	case info.IsDir():
		return dist.Source{Kind: dist.SourceDirectory, Path: path}, nil
	case dist.KindOf(path) != dist.ArchiveUnknown:
		return dist.Source{Kind: dist.SourcePath, Path: path}, nil
	}
	return dist.Source{}, errors.New(errors.ErrCodeInvalidRequirement, "%s is neither a directory nor a distribution archive", path)
}

// projectName reads the project name declared by a source tree.
func projectName(dir string) (dist.PackageName, error) {
	var p struct {
		Project struct {
			Name string `toml:"name"`
		} `toml:"project"`
	}
	path := filepath.Join(dir, "pyproject.toml")
	if _, err := toml.DecodeFile(path, &p); err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(errors.ErrCodeInvalidRequirement, err, "parse %s", path)
	}
	if p.Project.Name == "" {
		return "", errors.New(errors.ErrCodeInvalidRequirement, "cannot determine the project name of %s; add #egg=<name>", dir)
	}
	return dist.NormalizeName(p.Project.Name), nil
}

// absPath resolves p against base and expands a leading ~.
func absPath(p, base string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
