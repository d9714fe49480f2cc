package install

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/matzehuels/stackpip/pkg/errors"
)

// Compiler pre-compiles Python sources to bytecode.
type Compiler interface {
	// Compile compiles files (absolute paths). Per-file failures are
	// returned as CompileErrors; the error result is reserved for the
	// compiler being unable to run at all.
	Compile(ctx context.Context, files []string) ([]CompileError, error)
}

// NoopCompiler skips compilation.
type NoopCompiler struct{}

func (NoopCompiler) Compile(context.Context, []string) ([]CompileError, error) { return nil, nil }

// compileScript reads paths from stdin and reports failures as
// "path\tmessage" lines.
const compileScript = `
import py_compile, sys
for line in sys.stdin:
    path = line.rstrip("\n")
    if not path:
        continue
    try:
        py_compile.compile(path, doraise=True, invalidation_mode=py_compile.PycInvalidationMode.CHECKED_HASH)
    except Exception as exc:
        msg = str(exc).replace("\n", " ").replace("\t", " ")
        sys.stdout.write(path + "\t" + msg + "\n")
`

// PythonCompiler runs py_compile in one interpreter process.
type PythonCompiler struct {
	Python string
}

func (c PythonCompiler) Compile(ctx context.Context, files []string) ([]CompileError, error) {
	if len(files) == 0 {
		return nil, nil
	}
	python := c.Python
	if python == "" {
		python = "python3"
	}

	cmd := exec.CommandContext(ctx, python, "-c", compileScript)
	cmd.Stdin = strings.NewReader(strings.Join(files, "\n") + "\n")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, errors.New(errors.ErrCodeCompile, "%s", msg)
	}

	var out []CompileError
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		path, msg, ok := strings.Cut(sc.Text(), "\t")
		if !ok {
			continue
		}
		out = append(out, CompileError{Path: path, Err: errors.New(errors.ErrCodeCompile, "%s", msg)})
	}
	return out, nil
}
