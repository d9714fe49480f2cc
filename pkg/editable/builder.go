package editable

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/stackpip/pkg/build"
	"github.com/matzehuels/stackpip/pkg/cache"
	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/inflight"
	"github.com/matzehuels/stackpip/pkg/observability"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
	"github.com/matzehuels/stackpip/pkg/wheelcache"
)

// BuiltEditable is an editable wheel ready to install, with the metadata
// the build actually produced.
type BuiltEditable struct {
	Resolved ResolvedEditable
	Wheel    dist.Wheel
	Metadata build.Metadata
}

// ID returns the requirement's identity.
func (b *BuiltEditable) ID() string { return b.Resolved.ID() }

// Builder builds editable wheels. A Builder is safe for concurrent use.
type Builder struct {
	Backend  build.Backend
	Store    *wheelcache.Store
	InFlight *inflight.Registry[dist.Wheel]

	// Cache remembers builds by fingerprint. Nil disables reuse across runs.
	Cache cache.Cache
	Keyer cache.Keyer
	TTL   time.Duration

	// Python scopes cache keys to one interpreter.
	Python string

	Reporter observability.Reporter
	Logger   *log.Logger
}

// NewBuilder returns a Builder with its own in-flight registry and no
// persistent cache.
func NewBuilder(backend build.Backend, store *wheelcache.Store, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		Backend:  backend,
		Store:    store,
		InFlight: inflight.New[dist.Wheel](),
		Keyer:    cache.NewDefaultKeyer(),
		Reporter: observability.NoopReporter{},
		Logger:   logger,
	}
}

// buildRecord is what the cache stores for one build.
type buildRecord struct {
	Wheel    string         `json:"wheel"`
	Hash     string         `json:"hash"`
	Metadata build.Metadata `json:"metadata"`
}

// Build produces the editable wheel for r. An earlier build of the same
// fingerprint is reused when its wheel is still in the store.
func (b *Builder) Build(ctx context.Context, r *ResolvedEditable) (*BuiltEditable, error) {
	if b.Store == nil {
		return nil, errors.New(errors.ErrCodeInternal, "editable builder has no artifact store")
	}
	key := b.keyer().BuildKey(cache.BuildKeyOpts{
		Path:        r.Path,
		Fingerprint: r.Fingerprint,
		Editable:    true,
		Python:      b.Python,
	})

	if built, ok := b.cached(ctx, r, key); ok {
		b.logger().Debug("reusing editable build", "dist", r.ID(), "wheel", built.Wheel.Filename)
		return built, nil
	}

	// Static projects answer from pyproject.toml, dynamic ones through the
	// backend's metadata hook. Either way a project that cannot satisfy the
	// requirement fails before the build is paid for.
	md, err := b.Metadata(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := checkMetadata(r, md); err != nil {
		return nil, err
	}

	registry := b.InFlight
	if registry == nil {
		registry = inflight.New[dist.Wheel]()
	}
	// The fingerprint is part of the key so an edit made while a build is
	// running never attaches to the stale result.
	w, shared, err := registry.Do(ctx, r.ID()+"#"+r.Fingerprint, func(ctx context.Context) (dist.Wheel, error) {
		return b.build(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		b.logger().Debug("shared in-flight editable build", "dist", r.ID())
	}

	md, err = b.wheelMetadata(ctx, w)
	if err != nil {
		return nil, err
	}
	if err := checkMetadata(r, md); err != nil {
		return nil, err
	}

	built := &BuiltEditable{Resolved: *r, Wheel: w, Metadata: *md}
	if b.Cache != nil {
		data, _ := json.Marshal(buildRecord{Wheel: w.Path, Hash: w.Hash, Metadata: *md})
		if err := b.Cache.Set(ctx, key, data, b.TTL); err != nil {
			b.logger().Warn("cache editable build", "dist", r.ID(), "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "editable", len(data))
		}
	}
	return built, nil
}

// checkMetadata verifies that md describes the project r asks for.
func checkMetadata(r *ResolvedEditable, md *build.Metadata) error {
	if dist.NormalizeName(md.Name) != r.Requirement.Name {
		return errors.New(errors.ErrCodeBuild, "%s: project metadata names %s", r.ID(), md.Name)
	}
	if !r.Requirement.Specifier.IsEmpty() && !r.Requirement.Specifier.Contains(md.Version) {
		return errors.New(errors.ErrCodeBuild, "%s: version %s does not match %s", r.ID(), md.Version, r.Requirement.Specifier)
	}
	return nil
}

func (b *Builder) cached(ctx context.Context, r *ResolvedEditable, key string) (*BuiltEditable, bool) {
	if b.Cache == nil {
		return nil, false
	}
	data, ok, err := b.Cache.Get(ctx, key)
	if err != nil || !ok {
		observability.Cache().OnCacheMiss(ctx, "editable")
		return nil, false
	}
	var rec buildRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		observability.Cache().OnCacheMiss(ctx, "editable")
		return nil, false
	}
	fn, err := dist.ParseWheelFilename(rec.Wheel)
	if err != nil || fn.Name != r.Requirement.Name {
		observability.Cache().OnCacheMiss(ctx, "editable")
		return nil, false
	}
	// The entry may outlive the wheel it points at (cache clear, another
	// machine's path), and a later build of the same version replaces the
	// file in place.
	if hash, err := fsutil.HashFile(rec.Wheel); err != nil || hash != rec.Hash {
		observability.Cache().OnCacheMiss(ctx, "editable")
		return nil, false
	}
	observability.Cache().OnCacheHit(ctx, "editable")
	return &BuiltEditable{
		Resolved: *r,
		Wheel:    dist.Wheel{Requirement: r.Requirement, Filename: fn, Path: rec.Wheel, Hash: rec.Hash},
		Metadata: rec.Metadata,
	}, true
}

func (b *Builder) build(ctx context.Context, r *ResolvedEditable) (dist.Wheel, error) {
	if b.Backend == nil {
		return dist.Wheel{}, errors.New(errors.ErrCodeBuild, "%s: no build backend configured", r.ID())
	}
	outDir, err := b.Store.TempDir("editable-*")
	if err != nil {
		return dist.Wheel{}, err
	}
	defer os.RemoveAll(outDir)

	start := time.Now()
	reporter := observability.OrNoop(b.Reporter)
	reporter.OnBuildStart(r.ID())
	path, err := b.Backend.BuildEditable(ctx, r.Path, outDir)
	reporter.OnBuildComplete(r.ID(), err)
	if err != nil {
		return dist.Wheel{}, err
	}

	w, err := b.Store.Promote(path, r.Requirement, filepath.Base(path))
	if err != nil {
		return dist.Wheel{}, err
	}
	b.logger().Info("built editable", "dist", r.ID(), "backend", r.Backend, "wheel", w.Filename, "duration", time.Since(start).Round(time.Millisecond))
	return w, nil
}

// Metadata returns the metadata of r without building a wheel. Static
// projects answer from pyproject.toml; dynamic ones run the backend's
// metadata hook, cached by fingerprint.
func (b *Builder) Metadata(ctx context.Context, r *ResolvedEditable) (*build.Metadata, error) {
	if !r.Dynamic && r.Static != nil {
		md := *r.Static
		return &md, nil
	}
	key := b.keyer().MetadataKey(r.Path, r.Fingerprint)
	if b.Cache != nil {
		if data, ok, err := b.Cache.Get(ctx, key); err == nil && ok {
			var md build.Metadata
			if json.Unmarshal(data, &md) == nil {
				observability.Cache().OnCacheHit(ctx, "metadata")
				return &md, nil
			}
		}
		observability.Cache().OnCacheMiss(ctx, "metadata")
	}
	if b.Backend == nil {
		return nil, errors.New(errors.ErrCodeBuild, "%s: no build backend configured", r.ID())
	}

	md, err := b.Backend.PrepareMetadata(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	if b.Cache != nil {
		data, _ := json.Marshal(md)
		if err := b.Cache.Set(ctx, key, data, b.TTL); err != nil {
			b.logger().Warn("cache editable metadata", "dist", r.ID(), "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, "metadata", len(data))
		}
	}
	return md, nil
}

// wheelMetadata reads METADATA from the unpacked wheel. The unpacked copy
// stays in the store for the installer to reuse.
func (b *Builder) wheelMetadata(ctx context.Context, w dist.Wheel) (*build.Metadata, error) {
	dir, err := b.Store.Unpack(ctx, w)
	if err != nil {
		return nil, err
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.dist-info", "METADATA"))
	if len(matches) != 1 {
		return nil, errors.New(errors.ErrCodeBuild, "%s: expected one METADATA, found %d", w.Filename, len(matches))
	}
	f, err := os.Open(matches[0])
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "read metadata of %s", w.Filename)
	}
	defer f.Close()
	md, err := sitepackages.ParseMetadata(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "parse metadata of %s", w.Filename)
	}
	return &md, nil
}

func (b *Builder) keyer() cache.Keyer {
	if b.Keyer == nil {
		return cache.NewDefaultKeyer()
	}
	return b.Keyer
}

func (b *Builder) logger() *log.Logger {
	if b.Logger == nil {
		return log.Default()
	}
	return b.Logger
}
