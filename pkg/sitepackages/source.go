package sitepackages

import "encoding/json"

// SourceFile stores the fingerprint of a local source tree at install time.
// It lives next to direct_url.json and lets the next run detect edits to an
// editable or directory install.
const SourceFile = "stackpip_source.json"

// SourceStamp is the content of SourceFile.
type SourceStamp struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
}

// ParseSourceStamp decodes SourceFile.
func ParseSourceStamp(data []byte) (*SourceStamp, error) {
	var s SourceStamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Marshal encodes s as indented JSON.
func (s *SourceStamp) Marshal() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
