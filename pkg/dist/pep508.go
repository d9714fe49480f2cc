package dist

import (
	"regexp"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
)

var (
	pep508Name   = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)`)
	pep508Extras = regexp.MustCompile(`^\[([^\]]*)\]`)
)

// ParsePEP508 parses a dependency specification such as
//
//	requests[socks] (>=2.0,<3) ; python_version >= "3.8"
//	flask @ https://example.org/flask-3.0.0-py3-none-any.whl
//
// The marker is kept verbatim. Direct references yield a SourceURL
// requirement; everything else is a registry requirement.
func ParsePEP508(s string) (Requirement, error) {
	var req Requirement
	s = strings.TrimSpace(s)

	body := s
	if i := strings.Index(s, ";"); i >= 0 {
		body = strings.TrimSpace(s[:i])
		req.Marker = strings.TrimSpace(s[i+1:])
	}

	m := pep508Name.FindString(body)
	if m == "" {
		return Requirement{}, errors.New(errors.ErrCodeInvalidRequirement, "missing project name in %q", s)
	}
	req.Name = NormalizeName(m)
	rest := strings.TrimSpace(body[len(m):])

	if em := pep508Extras.FindStringSubmatch(rest); em != nil {
		for _, e := range strings.Split(em[1], ",") {
			if e = strings.TrimSpace(e); e != "" {
				req.Extras = append(req.Extras, string(NormalizeName(e)))
			}
		}
		rest = strings.TrimSpace(rest[len(em[0]):])
	}

	if strings.HasPrefix(rest, "@") {
		url := strings.TrimSpace(rest[1:])
		if err := errors.ValidateURL(url); err != nil {
			return Requirement{}, err
		}
		req.Source = Source{Kind: SourceURL, URL: url}
		return req, nil
	}

	rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "("), ")"))
	spec, err := ParseSpecifier(rest)
	if err != nil {
		return Requirement{}, err
	}
	req.Specifier = spec
	return req, nil
}
