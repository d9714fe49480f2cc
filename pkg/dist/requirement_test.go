package dist

import (
	"testing"

	"github.com/matzehuels/stackpip/pkg/errors"
)

func TestRequirementID(t *testing.T) {
	tests := []struct {
		name string
		req  Requirement
		want string
	}{
		{
			name: "registry pin",
			req:  Requirement{Name: "requests", Specifier: MustSpecifier("==2.31.0")},
			want: "requests==2.31.0",
		},
		{
			name: "registry range",
			req:  Requirement{Name: "requests", Specifier: MustSpecifier(">=2")},
			want: "requests>=2",
		},
		{
			name: "direct url",
			req: Requirement{Name: "flask", Source: Source{
				Kind: SourceURL, URL: "https://example.org/flask-3.0.0-py3-none-any.whl",
			}},
			want: "flask @ https://example.org/flask-3.0.0-py3-none-any.whl",
		},
		{
			name: "editable",
			req:  Requirement{Name: "app", Source: Source{Kind: SourceEditable, Path: "/src/app"}},
			want: "-e app @ file:///src/app",
		},
		{
			name: "directory",
			req:  Requirement{Name: "app", Source: Source{Kind: SourceDirectory, Path: "/src/app"}},
			want: "app @ file:///src/app",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.ID(); got != tt.want {
				t.Errorf("ID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequirementValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     Requirement
		wantErr bool
	}{
		{"registry", Requirement{Name: "requests"}, false},
		{"empty name", Requirement{}, true},
		{"bad url", Requirement{Name: "a", Source: Source{Kind: SourceURL, URL: "ftp://x"}}, true},
		{"relative path", Requirement{Name: "a", Source: Source{Kind: SourceEditable, Path: "src/a"}}, true},
		{"absolute path", Requirement{Name: "a", Source: Source{Kind: SourcePath, Path: "/w/a-1.0-py3-none-any.whl"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidRequirement) {
				t.Errorf("expected INVALID_REQUIREMENT, got %v", err)
			}
		})
	}
}

func TestRequirementString(t *testing.T) {
	req := Requirement{
		Name:      "uvicorn",
		Specifier: MustSpecifier("==0.30.0"),
		Extras:    []string{"standard", "dev"},
		Marker:    `python_version >= "3.9"`,
	}
	want := `uvicorn[dev,standard]==0.30.0 ; python_version >= "3.9"`
	if got := req.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseHash(t *testing.T) {
	h, err := ParseHash("sha256:ABCDEF")
	if err != nil {
		t.Fatal(err)
	}
	if h.Algorithm != "sha256" || h.Digest != "abcdef" {
		t.Errorf("ParseHash = %+v", h)
	}
	if _, err := ParseHash("sha256:"); err == nil {
		t.Error("expected error for empty digest")
	}
	if _, err := ParseHash("nodigest"); err == nil {
		t.Error("expected error for missing separator")
	}
}
