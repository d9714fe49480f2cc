package requirements

import (
	"bufio"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
)

// ParseRequirementsTxt parses a requirements file. base resolves relative
// paths. Supported lines:
//
//	name[extras]==1.0 ; marker --hash=sha256:<hex>
//	name @ https://host/name-1.0-py3-none-any.whl
//	name @ file:///abs/path
//	./local/name-1.0-py3-none-any.whl
//	./local/project
//	-e ./local/project[#egg=name]
//	-f ./wheelhouse (--find-links)
//
// Other options (-i, --index-url, -c, ...) are ignored.
func ParseRequirementsTxt(r io.Reader, base string) ([]dist.Requirement, error) {
	lines, err := logicalLines(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "read requirements")
	}

	var reqs []dist.Requirement
	var findLinks []string
	for _, ln := range lines {
		req, link, err := parseLine(ln.text, base)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "line %d", ln.number)
		}
		if link != "" {
			findLinks = append(findLinks, link)
		}
		if req != nil {
			reqs = append(reqs, *req)
		}
	}

	for i := range reqs {
		if err := locate(&reqs[i], findLinks); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

type line struct {
	number int
	text   string
}

// logicalLines strips comments and joins backslash continuations.
func logicalLines(r io.Reader) ([]line, error) {
	var out []line
	var cur strings.Builder
	start := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		text := sc.Text()
		if cur.Len() == 0 {
			start = n
		}
		if strings.HasSuffix(text, "\\") {
			cur.WriteString(strings.TrimSuffix(text, "\\"))
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(text)
		full := stripComment(cur.String())
		cur.Reset()
		if full != "" {
			out = append(out, line{number: start, text: full})
		}
	}
	if cur.Len() > 0 {
		if full := stripComment(cur.String()); full != "" {
			out = append(out, line{number: start, text: full})
		}
	}
	return out, sc.Err()
}

// stripComment drops a # comment that starts the line or follows
// whitespace. A # inside a URL fragment is kept.
func stripComment(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t') {
			s = s[:i]
			break
		}
	}
	return strings.TrimSpace(s)
}

// parseLine returns either a requirement, a find-links directory, or
// neither for ignored options.
func parseLine(text, base string) (*dist.Requirement, string, error) {
	fields := strings.Fields(text)

	switch opt, val := splitOption(fields); opt {
	case "":
	case "-e", "--editable":
		if val == "" {
			return nil, "", errors.New(errors.ErrCodeInvalidRequirement, "%s needs a path", opt)
		}
		req, err := parseEditable(val, base)
		return req, "", err
	case "-f", "--find-links":
		if val == "" {
			return nil, "", errors.New(errors.ErrCodeInvalidRequirement, "%s needs a directory", opt)
		}
		return nil, absPath(strings.TrimPrefix(val, "file://"), base), nil
	default:
		return nil, "", nil
	}

	// Split trailing --hash options off the requirement.
	var hashes []dist.Hash
	var spec []string
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case strings.HasPrefix(f, "--hash="):
			h, err := dist.ParseHash(strings.TrimPrefix(f, "--hash="))
			if err != nil {
				return nil, "", err
			}
			hashes = append(hashes, h)
		case f == "--hash" && i+1 < len(fields):
			h, err := dist.ParseHash(fields[i+1])
			if err != nil {
				return nil, "", err
			}
			hashes = append(hashes, h)
			i++
		default:
			spec = append(spec, f)
		}
	}
	text = strings.Join(spec, " ")

	var req dist.Requirement
	var err error
	if isPath(text) {
		req, err = parsePath(text, base)
	} else {
		req, err = dist.ParsePEP508(text)
		if err == nil && strings.HasPrefix(req.Source.URL, "file:") {
			req, err = fileURL(req)
		}
	}
	if err != nil {
		return nil, "", err
	}
	req.Hashes = hashes
	return &req, "", nil
}

// splitOption recognizes "-e path", "--editable=path" and similar.
func splitOption(fields []string) (string, string) {
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "-") {
		return "", ""
	}
	opt := fields[0]
	if i := strings.Index(opt, "="); i > 0 {
		return opt[:i], opt[i+1:]
	}
	if len(fields) > 1 {
		return opt, fields[1]
	}
	return opt, ""
}

func isPath(s string) bool {
	return strings.HasPrefix(s, ".") || strings.HasPrefix(s, "/") || strings.HasPrefix(s, "~")
}

// parseEditable handles "-e path[#egg=name]" and "-e file:///path".
func parseEditable(val, base string) (*dist.Requirement, error) {
	var name dist.PackageName
	if i := strings.Index(val, "#egg="); i >= 0 {
		name = dist.NormalizeName(val[i+len("#egg="):])
		val = val[:i]
	}
	path := absPath(strings.TrimPrefix(val, "file://"), base)
	src, err := localSource(path, true)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if name, err = projectName(path); err != nil {
			return nil, err
		}
	}
	return &dist.Requirement{Name: name, Source: src}, nil
}

// parsePath handles a bare local wheel, archive or project directory.
func parsePath(text, base string) (dist.Requirement, error) {
	path := absPath(text, base)
	src, err := localSource(path, false)
	if err != nil {
		return dist.Requirement{}, err
	}
	req := dist.Requirement{Source: src}
	switch {
	case src.Kind == dist.SourceDirectory:
		req.Name, err = projectName(path)
	case dist.KindOf(path) == dist.ArchiveWheel:
		var fn dist.WheelFilename
		if fn, err = dist.ParseWheelFilename(path); err == nil {
			req.Name = fn.Name
			req.Specifier = dist.MustSpecifier("==" + fn.Version)
		}
	default:
		req.Name, err = sdistName(path)
	}
	return req, err
}

// fileURL turns "name @ file:///path" into a local requirement.
func fileURL(req dist.Requirement) (dist.Requirement, error) {
	u, err := url.Parse(req.Source.URL)
	if err != nil {
		return req, errors.Wrap(errors.ErrCodeInvalidRequirement, err, "%s", req.Source.URL)
	}
	src, err := localSource(filepath.Clean(filepath.FromSlash(u.Path)), false)
	if err != nil {
		return req, err
	}
	req.Source = src
	return req, nil
}

// sdistName takes the project name from "<name>-<version>.tar.gz".
func sdistName(path string) (dist.PackageName, error) {
	base := filepath.Base(path)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		base = strings.TrimSuffix(base, ext)
	}
	i := strings.LastIndex(base, "-")
	if i <= 0 {
		return "", errors.New(errors.ErrCodeInvalidRequirement, "cannot determine the project name of %s", path)
	}
	return dist.NormalizeName(base[:i]), nil
}

// locate points a pinned registry requirement at a matching wheel in one of
// the find-links directories.
func locate(req *dist.Requirement, findLinks []string) error {
	if req.Source.Kind != dist.SourceRegistry || req.Source.URL != "" {
		return nil
	}
	version, ok := req.Specifier.Pinned()
	if !ok {
		return nil
	}
	for _, dir := range findLinks {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidRequirement, err, "find-links %s", dir)
		}
		for _, e := range entries {
			fn, err := dist.ParseWheelFilename(e.Name())
			if err != nil || fn.Name != req.Name || dist.CompareVersions(fn.Version, version) != 0 {
				continue
			}
			req.Source.URL = "file://" + filepath.ToSlash(filepath.Join(dir, e.Name()))
			return nil
		}
	}
	return nil
}
