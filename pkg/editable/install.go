package editable

import (
	"context"

	"github.com/matzehuels/stackpip/pkg/install"
	"github.com/matzehuels/stackpip/pkg/sitepackages"
)

// InstalledEditable is an editable committed to an environment.
type InstalledEditable struct {
	Built        BuiltEditable
	Distribution *sitepackages.Distribution
}

// Install places b through in. The distribution is recorded as editable and
// stamped with the fingerprint the wheel was built from, so a later change
// to the source tree reads as out of date.
func Install(ctx context.Context, in *install.Installer, b *BuiltEditable) (*InstalledEditable, error) {
	d, err := in.InstallOne(ctx, install.Item{
		Wheel:       b.Wheel,
		Requested:   true,
		Fingerprint: b.Resolved.Fingerprint,
		Editable:    true,
	})
	if err != nil {
		return nil, err
	}
	return &InstalledEditable{Built: *b, Distribution: d}, nil
}
