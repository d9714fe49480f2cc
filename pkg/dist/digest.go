package dist

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Digester computes every algorithm named in a requirement's hashes in a
// single pass. sha256 is always computed.
type Digester struct {
	hashes map[string]hash.Hash
}

// NewDigester prepares a Digester for the algorithms in want.
func NewDigester(want []Hash) *Digester {
	d := &Digester{hashes: map[string]hash.Hash{"sha256": sha256.New()}}
	for _, h := range want {
		switch h.Algorithm {
		case "sha384":
			d.hashes["sha384"] = sha512.New384()
		case "sha512":
			d.hashes["sha512"] = sha512.New()
		}
	}
	return d
}

func (d *Digester) Write(p []byte) (int, error) {
	for _, h := range d.hashes {
		h.Write(p)
	}
	return len(p), nil
}

// Sum returns the hex digest for algo, if it was computed.
func (d *Digester) Sum(algo string) (string, bool) {
	h, ok := d.hashes[algo]
	if !ok {
		return "", false
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

// Verify succeeds when want is empty or at least one expected hash matches.
func (d *Digester) Verify(want []Hash) error {
	if len(want) == 0 {
		return nil
	}
	var got string
	for _, h := range want {
		sum, ok := d.Sum(h.Algorithm)
		if !ok {
			continue
		}
		if sum == h.Digest {
			return nil
		}
		got = h.Algorithm + ":" + sum
	}
	if got == "" {
		return fmt.Errorf("no supported hash algorithm among %v", want)
	}
	return fmt.Errorf("expected one of %v, got %s", want, got)
}

// VerifyFile hashes the file at path and checks it against want.
func VerifyFile(path string, want []Hash) error {
	if len(want) == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	d := NewDigester(want)
	if _, err := io.Copy(d, f); err != nil {
		return err
	}
	return d.Verify(want)
}
