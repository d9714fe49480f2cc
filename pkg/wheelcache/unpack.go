package wheelcache

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/stackpip/pkg/dist"
	"github.com/matzehuels/stackpip/pkg/errors"
	"github.com/matzehuels/stackpip/pkg/fsutil"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// Unpack extracts w into archives/<sha256>/ and returns that directory.
// Extraction happens in tmp/ and is renamed into place, so the returned
// directory is always complete.
//
// An existing unpacked copy is reused only while it still matches the
// wheel's RECORD. Hardlinked installs share inodes with it, so an edit in
// site-packages shows up here; such a copy is replaced by a fresh
// extraction.
func (s *Store) Unpack(ctx context.Context, w dist.Wheel) (string, error) {
	hash := w.Hash
	if hash == "" {
		var err error
		if hash, err = fsutil.HashFile(w.Path); err != nil {
			return "", errors.Wrap(errors.ErrCodeInstall, err, "hash %s", w.Path)
		}
	}
	dst := filepath.Join(s.root, archivesDir, hash)
	stale := false
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		if VerifyRecord(dst, w.Filename.DistInfoDir()) == nil {
			return dst, nil
		}
		stale = true
	}

	tmp, err := s.TempDir("unpack-*")
	if err != nil {
		return "", err
	}
	if err := ExtractZip(ctx, w.Path, tmp); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}
	if stale {
		if err := s.retire(dst); err != nil {
			os.RemoveAll(tmp)
			return "", err
		}
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.RemoveAll(tmp)
		// Lost a race with another unpacker of the same archive.
		if info, statErr := os.Stat(dst); statErr == nil && info.IsDir() {
			return dst, nil
		}
		return "", errors.Wrap(errors.ErrCodeInstall, err, "promote unpacked %s", w.Filename)
	}
	return dst, nil
}

// retire moves dir into tmp/ and removes it there. Files hardlinked from
// dir into an environment keep their content.
func (s *Store) retire(dir string) error {
	trash, err := s.TempDir("stale-*")
	if err != nil {
		return err
	}
	if err := os.Rename(dir, filepath.Join(trash, filepath.Base(dir))); err != nil && !os.IsNotExist(err) {
		os.RemoveAll(trash)
		return errors.Wrap(errors.ErrCodeInstall, err, "retire %s", filepath.Base(dir))
	}
	return os.RemoveAll(trash)
}

// VerifyRecord checks the files under unpacked against the RECORD shipped
// in its distInfo directory.
func VerifyRecord(unpacked, distInfo string) error {
	f, err := os.Open(filepath.Join(unpacked, distInfo, sitepackages.RecordFile))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "%s has no RECORD", distInfo)
	}
	defer f.Close()
	entries, err := sitepackages.ReadRecord(f)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "%s", distInfo)
	}
	for _, e := range entries {
		if e.Digest == "" {
			continue
		}
		digest, _, err := fsutil.FileDigest(filepath.Join(unpacked, filepath.FromSlash(e.Path)))
		if err != nil {
			return errors.Wrap(errors.ErrCodeInstall, err, "wheel file %s", e.Path)
		}
		if digest != e.Digest {
			return errors.New(errors.ErrCodeDigestMismatch, "wheel file %s does not match its RECORD digest", e.Path)
		}
	}
	return nil
}

// ExtractZip extracts the zip archive at src into dir. Member names that
// would escape dir are rejected.
func ExtractZip(ctx context.Context, src, dir string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "open archive %s", filepath.Base(src))
	}
	defer zr.Close()

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := extractMember(f, dir); err != nil {
			return err
		}
	}
	return nil
}

func extractMember(f *zip.File, dir string) error {
	if f.FileInfo().IsDir() {
		return nil
	}
	if err := errors.ValidateArchivePath(f.Name); err != nil {
		return err
	}
	dst := filepath.Join(dir, filepath.FromSlash(f.Name))
	if err := errors.ValidateWithin(dir, dst); err != nil {
		return err
	}

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	rc, err := f.Open()
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "read %s", f.Name)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "extract %s", f.Name)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInstall, err, "extract %s", f.Name)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return errors.Wrap(errors.ErrCodeInstall, err, "extract %s", f.Name)
	}
	return out.Close()
}
