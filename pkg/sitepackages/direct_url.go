package sitepackages

import (
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// DirectURLFile records where a distribution was installed from (PEP 610).
const DirectURLFile = "direct_url.json"

var errMissingURL = errors.New("direct_url.json: missing url")

// DirectURL is the content of direct_url.json.
type DirectURL struct {
	URL         string       `json:"url"`
	VCSInfo     *VCSInfo     `json:"vcs_info,omitempty"`
	ArchiveInfo *ArchiveInfo `json:"archive_info,omitempty"`
	DirInfo     *DirInfo     `json:"dir_info,omitempty"`
}

type VCSInfo struct {
	VCS               string `json:"vcs"`
	RequestedRevision string `json:"requested_revision,omitempty"`
	CommitID          string `json:"commit_id"`
}

type ArchiveInfo struct {
	Hash   string            `json:"hash,omitempty"`
	Hashes map[string]string `json:"hashes,omitempty"`
}

type DirInfo struct {
	Editable bool `json:"editable,omitempty"`
}

// ParseDirectURL decodes direct_url.json.
func ParseDirectURL(data []byte) (*DirectURL, error) {
	var d DirectURL
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d.URL == "" {
		return nil, errMissingURL
	}
	return &d, nil
}

// Marshal encodes d as indented JSON.
func (d *DirectURL) Marshal() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

// IsEditable reports whether the distribution was installed in editable mode.
func (d *DirectURL) IsEditable() bool {
	return d != nil && d.DirInfo != nil && d.DirInfo.Editable
}

// LocalPath returns the filesystem path for a file:// URL.
func (d *DirectURL) LocalPath() (string, bool) {
	if d == nil {
		return "", false
	}
	u, err := url.Parse(d.URL)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), true
}

// FileURL renders an absolute path as a file:// URL.
func FileURL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Clean(path))}
	return u.String()
}

// SameURL compares two direct-reference URLs, ignoring a trailing hash
// fragment (#sha256=...) which identifies content rather than location.
func SameURL(a, b string) bool {
	strip := func(s string) string {
		if i := strings.Index(s, "#"); i >= 0 {
			s = s[:i]
		}
		return strings.TrimSuffix(s, "/")
	}
	return strip(a) == strip(b)
}
