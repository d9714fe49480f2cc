package sitepackages

import "testing"

func TestAddRemove(t *testing.T) {
	sp := New("/venv/lib/site-packages")

	old := &Distribution{Name: "pkg", Version: "1.0", Path: "/sp/pkg-1.0.dist-info"}
	sp.Add(old)
	if d, ok := sp.Get("pkg"); !ok || d != old {
		t.Fatal("Add did not register the distribution")
	}

	sp.Remove(old)
	if _, ok := sp.Get("pkg"); ok {
		t.Error("Remove did not unregister the distribution")
	}

	replacement := &Distribution{Name: "pkg", Version: "2.0", Path: "/sp/pkg-2.0.dist-info"}
	sp.Add(replacement)
	if sp.Len() != 1 {
		t.Errorf("Len() = %d, want 1", sp.Len())
	}
}

func TestAddKeepsDisplacedAsDuplicate(t *testing.T) {
	sp := New("/sp")
	a := &Distribution{Name: "pkg", Version: "1.0", Path: "/sp/pkg-1.0.dist-info"}
	b := &Distribution{Name: "pkg", Version: "2.0", Path: "/sp/pkg-2.0.dist-info"}
	sp.Add(a)
	sp.Add(b)

	if dups := sp.Duplicates("pkg"); len(dups) != 1 || dups[0] != a {
		t.Fatalf("Duplicates = %v", dups)
	}

	sp.Remove(b)
	if live, _ := sp.Get("pkg"); live != a {
		t.Errorf("remaining duplicate should become live, got %v", live)
	}
	if len(sp.Duplicates("pkg")) != 0 {
		t.Error("duplicates should be empty")
	}
}

func TestDistributionsSorted(t *testing.T) {
	sp := New("/sp")
	for _, n := range []string{"zope", "attrs", "flask"} {
		sp.Add(&Distribution{Name: distName(n), Version: "1", Path: "/sp/" + n})
	}
	got := sp.Distributions()
	if got[0].Name != "attrs" || got[2].Name != "zope" {
		t.Errorf("Distributions not sorted: %v", got)
	}
}

func TestCheck(t *testing.T) {
	sp := New("/sp")
	sp.Add(&Distribution{
		Name: "flask", Version: "3.0.0", Path: "/sp/flask",
		RequiresPython: ">=3.8",
		RequiresDist: []string{
			"werkzeug>=3.0",
			"click>=8.1",
			`asgiref>=3.2 ; extra == "async"`,
		},
	})
	sp.Add(&Distribution{Name: "werkzeug", Version: "2.3.0", Path: "/sp/werkzeug"})
	sp.Add(&Distribution{Name: "legacy", Version: "1.0", Path: "/sp/legacy", RequiresPython: "<3"})

	diags := sp.Check("3.12")
	kinds := map[DiagnosticKind][]string{}
	for _, d := range diags {
		kinds[d.Kind] = append(kinds[d.Kind], string(d.Name))
	}

	if len(kinds[IncompatibleDependency]) != 1 {
		t.Errorf("want werkzeug version conflict, got %v", diags)
	}
	if len(kinds[MissingDependency]) != 1 {
		t.Errorf("want missing click, got %v", diags)
	}
	if got := kinds[IncompatiblePython]; len(got) != 1 || got[0] != "legacy" {
		t.Errorf("want legacy python incompatibility, got %v", diags)
	}
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		site, want string
	}{
		{"/venv/lib/python3.12/site-packages", "/venv"},
		{"/venv/lib64/python3.12/site-packages", "/venv"},
		{"/opt/custom/target", "/opt/custom/target"},
	}
	for _, tt := range tests {
		if got := EnvPrefix(tt.site); got != tt.want {
			t.Errorf("EnvPrefix(%s) = %s, want %s", tt.site, got, tt.want)
		}
	}
}
