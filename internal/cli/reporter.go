package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/matzehuels/stackpip/pkg/observability"
)

// barReporter renders download and build progress as one byte-counting
// progress bar. Sizes that are unknown up front switch the bar to
// indeterminate mode.
type barReporter struct {
	observability.NoopReporter

	w   io.Writer
	mu  sync.Mutex
	bar *progressbar.ProgressBar

	total     int64
	unknown   bool
	started   int
	completed int
	failed    int
	building  string
}

func newBarReporter(w io.Writer) *barReporter {
	return &barReporter{w: w}
}

// ensure creates the bar on first use. Caller holds mu.
func (r *barReporter) ensure(size int64) {
	if r.bar != nil {
		return
	}
	limit := size
	if limit <= 0 {
		limit = -1
		r.unknown = true
	}
	r.bar = progressbar.NewOptions64(limit,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *barReporter) describe() {
	desc := fmt.Sprintf("Downloading %d/%d", r.completed, r.started)
	if r.building != "" {
		desc += " · building " + r.building
	}
	r.bar.Describe(desc)
}

func (r *barReporter) OnDownloadStart(id string, size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(size)
	r.started++
	if size > 0 && !r.unknown {
		r.total += size
		r.bar.ChangeMax64(r.total)
	}
	r.describe()
}

func (r *barReporter) OnDownloadProgress(id string, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Add64(n)
	}
}

func (r *barReporter) OnDownloadComplete(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
	if err != nil {
		r.failed++
	}
	if r.bar != nil {
		r.describe()
	}
}

func (r *barReporter) OnBuildStart(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensure(-1)
	r.building = id
	r.describe()
}

func (r *barReporter) OnBuildComplete(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.building == id {
		r.building = ""
	}
	if r.bar != nil {
		r.describe()
	}
}

// Finish clears the bar.
func (r *barReporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// counts returns the number of downloads started and failed.
func (r *barReporter) counts() (started, failed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started, r.failed
}
