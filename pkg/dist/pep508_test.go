package dist

import (
	"reflect"
	"testing"
)

func TestParsePEP508(t *testing.T) {
	tests := []struct {
		in         string
		wantName   PackageName
		wantSpec   string
		wantExtras []string
		wantMarker string
		wantURL    string
	}{
		{in: "requests", wantName: "requests"},
		{in: "requests>=2.0", wantName: "requests", wantSpec: ">=2.0"},
		{in: "requests (>=2.0,<3)", wantName: "requests", wantSpec: ">=2.0,<3"},
		{in: "Requests[Socks, security]==2.31.0", wantName: "requests", wantSpec: "==2.31.0", wantExtras: []string{"socks", "security"}},
		{in: "python-dateutil==2.8.2.post1", wantName: "python-dateutil", wantSpec: "==2.8.2.post1"},
		{in: `colorama ; sys_platform == "win32"`, wantName: "colorama", wantMarker: `sys_platform == "win32"`},
		{in: "flask @ https://example.org/flask-3.0.0-py3-none-any.whl", wantName: "flask", wantURL: "https://example.org/flask-3.0.0-py3-none-any.whl"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			req, err := ParsePEP508(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if req.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", req.Name, tt.wantName)
			}
			if req.Specifier.String() != tt.wantSpec {
				t.Errorf("Specifier = %q, want %q", req.Specifier.String(), tt.wantSpec)
			}
			if !reflect.DeepEqual(req.Extras, tt.wantExtras) {
				t.Errorf("Extras = %v, want %v", req.Extras, tt.wantExtras)
			}
			if req.Marker != tt.wantMarker {
				t.Errorf("Marker = %q, want %q", req.Marker, tt.wantMarker)
			}
			if req.Source.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", req.Source.URL, tt.wantURL)
			}
		})
	}
}

func TestParsePEP508Errors(t *testing.T) {
	for _, in := range []string{"", ">=1.0", "pkg @ ftp://host/pkg.whl", "pkg >>1"} {
		if _, err := ParsePEP508(in); err == nil {
			t.Errorf("ParsePEP508(%q) expected error", in)
		}
	}
}
