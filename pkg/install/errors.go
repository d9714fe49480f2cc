package install

import (
	stderrors "errors"
	"fmt"

	"github.com/matzehuels/stackpip/pkg/dist"
)

// InstallError reports that one wheel could not be installed. Siblings are
// unaffected.
type InstallError struct {
	ID   string
	Name dist.PackageName
	Err  error
}

func (e *InstallError) Error() string { return fmt.Sprintf("install %s: %v", e.ID, e.Err) }
func (e *InstallError) Unwrap() error { return e.Err }

// CompileError reports a bytecode compilation failure. It is a diagnostic,
// never an install failure.
type CompileError struct {
	Path string
	Err  error
}

func (e CompileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("compile: %v", e.Err)
	}
	return fmt.Sprintf("compile %s: %v", e.Path, e.Err)
}

func (e CompileError) Unwrap() error { return e.Err }

// InstallErrors extracts every *InstallError from a joined error.
func InstallErrors(err error) []*InstallError {
	if err == nil {
		return nil
	}
	var out []*InstallError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, InstallErrors(e)...)
		}
		return out
	}
	var ie *InstallError
	if stderrors.As(err, &ie) {
		out = append(out, ie)
	}
	return out
}
