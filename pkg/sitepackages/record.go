package sitepackages

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// RecordFile is the name of the installed-files manifest.
const RecordFile = "RECORD"

// RecordEntry is one row of a RECORD manifest. Path is relative to the
// site-packages directory and may climb out of it (console scripts).
type RecordEntry struct {
	Path   string
	Digest string // "sha256=<urlsafe base64>", empty for RECORD itself
	Size   int64  // -1 when unknown
}

// ReadRecord parses a RECORD manifest.
func ReadRecord(r io.Reader) ([]RecordEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var entries []RecordEntry
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("RECORD line %d: %w", line, err)
		}
		if len(row) == 0 || row[0] == "" {
			continue
		}
		e := RecordEntry{Path: row[0], Size: -1}
		if len(row) > 1 {
			e.Digest = row[1]
		}
		if len(row) > 2 && row[2] != "" {
			size, err := strconv.ParseInt(row[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("RECORD line %d: invalid size %q", line, row[2])
			}
			e.Size = size
		}
		entries = append(entries, e)
	}
}

// WriteRecord serializes entries in RECORD format.
func WriteRecord(w io.Writer, entries []RecordEntry) error {
	cw := csv.NewWriter(w)
	for _, e := range entries {
		size := ""
		if e.Size >= 0 && e.Digest != "" {
			size = strconv.FormatInt(e.Size, 10)
		}
		if err := cw.Write([]string{e.Path, e.Digest, size}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
