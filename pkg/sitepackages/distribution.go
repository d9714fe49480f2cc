package sitepackages

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strings"

	"github.com/matzehuels/stackpip/pkg/dist"
)

// Distribution is one installed project, as recorded in its .dist-info
// directory.
type Distribution struct {
	Name    dist.PackageName
	Version string

	// Root is the site-packages directory; Path is the absolute .dist-info
	// directory inside it.
	Root string
	Path string

	Record    []RecordEntry
	Installer string
	Requested bool
	DirectURL *DirectURL
	Source    *SourceStamp

	RequiresPython string
	RequiresDist   []string

	// MetadataErr is set when METADATA, RECORD or direct_url.json could not
	// be parsed. Such a distribution never satisfies a requirement.
	MetadataErr error
}

// ID returns "name==version".
func (d *Distribution) ID() string {
	if d.Version == "" {
		return string(d.Name)
	}
	return fmt.Sprintf("%s==%s", d.Name, d.Version)
}

func (d *Distribution) String() string { return d.ID() }

// IsEditable reports whether the distribution is an editable install.
func (d *Distribution) IsEditable() bool { return d.DirectURL.IsEditable() }

// Usable reports whether the distribution's metadata was fully parsed.
func (d *Distribution) Usable() bool { return d.MetadataErr == nil }

// CoreMetadata is the subset of METADATA (PKG-INFO format) the engine reads.
type CoreMetadata struct {
	Name           string
	Version        string
	RequiresPython string
	RequiresDist   []string
}

// ParseMetadata reads the RFC 822 style header block of METADATA. The long
// description after the first blank line is ignored.
func ParseMetadata(r io.Reader) (CoreMetadata, error) {
	tp := textproto.NewReader(bufio.NewReader(r))
	hdr, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return CoreMetadata{}, err
	}

	md := CoreMetadata{
		Name:           strings.TrimSpace(hdr.Get("Name")),
		Version:        strings.TrimSpace(hdr.Get("Version")),
		RequiresPython: strings.TrimSpace(hdr.Get("Requires-Python")),
		RequiresDist:   hdr.Values("Requires-Dist"),
	}
	if md.Name == "" {
		return md, fmt.Errorf("METADATA: missing Name")
	}
	if md.Version == "" {
		return md, fmt.Errorf("METADATA: missing Version")
	}
	return md, nil
}
