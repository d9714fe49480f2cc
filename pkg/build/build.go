// Package build turns source trees into wheels through a PEP 517 backend.
//
// [Backend] is the engine's view of a build frontend. [CommandBackend] runs
// a Python interpreter with a small driver that imports the project's
// declared build backend and calls its hooks. Build dependencies must
// already be importable by that interpreter; provisioning isolated build
// environments is left to the caller.
package build

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Metadata is the core metadata a backend reports for a source tree.
type Metadata = sitepackages.CoreMetadata

// Backend builds wheels and reads metadata from source trees.
type Backend interface {
	// BuildWheel builds a regular wheel from srcDir into outDir and returns
	// the wheel's path.
	BuildWheel(ctx context.Context, srcDir, outDir string) (string, error)

	// BuildEditable builds a PEP 660 editable wheel.
	BuildEditable(ctx context.Context, srcDir, outDir string) (string, error)

	// PrepareMetadata returns the project's metadata without a full build.
	PrepareMetadata(ctx context.Context, srcDir string) (*Metadata, error)
}

//go:embed driver.py
var driverScript string

// CommandBackend invokes the PEP 517 hooks through a Python interpreter.
type CommandBackend struct {
	// Python is the interpreter path. Defaults to "python3".
	Python string
	// Env is appended to the current environment.
	Env    []string
	Logger *log.Logger
}

// NewCommandBackend returns a backend using python.
func NewCommandBackend(python string, logger *log.Logger) *CommandBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &CommandBackend{Python: python, Logger: logger}
}

func (b *CommandBackend) BuildWheel(ctx context.Context, srcDir, outDir string) (string, error) {
	return b.buildHook(ctx, "build_wheel", srcDir, outDir)
}

func (b *CommandBackend) BuildEditable(ctx context.Context, srcDir, outDir string) (string, error) {
	return b.buildHook(ctx, "build_editable", srcDir, outDir)
}

func (b *CommandBackend) PrepareMetadata(ctx context.Context, srcDir string) (*Metadata, error) {
	outDir, err := os.MkdirTemp("", "stackpip-metadata-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "create metadata dir")
	}
	defer os.RemoveAll(outDir)

	distInfo, err := b.run(ctx, "prepare_metadata_for_build_wheel", srcDir, outDir)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(outDir, distInfo, "METADATA"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "read metadata for %s", srcDir)
	}
	defer f.Close()
	md, err := sitepackages.ParseMetadata(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "parse metadata for %s", srcDir)
	}
	return &md, nil
}

func (b *CommandBackend) buildHook(ctx context.Context, hook, srcDir, outDir string) (string, error) {
	name, err := b.run(ctx, hook, srcDir, outDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(outDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrap(errors.ErrCodeBuild, err, "%s reported %s but it does not exist", hook, name)
	}
	return path, nil
}

// run executes the driver and returns the last non-empty line of stdout,
// which is the hook's return value.
func (b *CommandBackend) run(ctx context.Context, hook, srcDir, outDir string) (string, error) {
	python := b.Python
	if python == "" {
		python = "python3"
	}
	logger := b.Logger
	if logger == nil {
		logger = log.Default()
	}

	cmd := exec.CommandContext(ctx, python, "-c", driverScript, hook, outDir)
	cmd.Dir = srcDir
	cmd.Env = append(os.Environ(), b.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running build hook", "hook", hook, "src", srcDir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.Wrap(errors.ErrCodeBuild, err, "%s in %s:\n%s", hook, srcDir, tail(stderr.String(), 20))
	}

	result := lastLine(stdout.String())
	if result == "" {
		return "", errors.New(errors.ErrCodeBuild, "%s in %s returned nothing", hook, srcDir)
	}
	return result, nil
}

func lastLine(s string) string {
	var last string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			last = line
		}
	}
	return last
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
