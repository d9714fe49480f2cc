package observability

// Reporter receives structured progress events for individual
// distributions. Implementations must be safe for concurrent use and must
// not block.
type Reporter interface {
	// OnDownloadStart is called before the first byte is read. size is -1
	// when the length is unknown.
	OnDownloadStart(id string, size int64)

	// OnDownloadProgress reports n additional bytes read for id.
	OnDownloadProgress(id string, n int64)

	// OnDownloadComplete is called once per started download.
	OnDownloadComplete(id string, err error)

	// OnBuildStart and OnBuildComplete bracket a build backend invocation.
	OnBuildStart(id string)
	OnBuildComplete(id string, err error)

	// OnInstall is called after a distribution's RECORD is committed.
	OnInstall(id string)

	// OnUninstall reports how many files were removed and skipped.
	OnUninstall(id string, removed, skipped int, err error)

	// OnDiagnostic forwards an environment or compile diagnostic.
	OnDiagnostic(kind, name, message string)
}

// NoopReporter ignores every event.
type NoopReporter struct{}

func (NoopReporter) OnDownloadStart(string, int64)       {}
func (NoopReporter) OnDownloadProgress(string, int64)    {}
func (NoopReporter) OnDownloadComplete(string, error)    {}
func (NoopReporter) OnBuildStart(string)                 {}
func (NoopReporter) OnBuildComplete(string, error)       {}
func (NoopReporter) OnInstall(string)                    {}
func (NoopReporter) OnUninstall(string, int, int, error) {}
func (NoopReporter) OnDiagnostic(string, string, string) {}

// Multi fans events out to several reporters in order.
type Multi []Reporter

func (m Multi) OnDownloadStart(id string, size int64) {
	for _, r := range m {
		r.OnDownloadStart(id, size)
	}
}

func (m Multi) OnDownloadProgress(id string, n int64) {
	for _, r := range m {
		r.OnDownloadProgress(id, n)
	}
}

func (m Multi) OnDownloadComplete(id string, err error) {
	for _, r := range m {
		r.OnDownloadComplete(id, err)
	}
}

func (m Multi) OnBuildStart(id string) {
	for _, r := range m {
		r.OnBuildStart(id)
	}
}

func (m Multi) OnBuildComplete(id string, err error) {
	for _, r := range m {
		r.OnBuildComplete(id, err)
	}
}

func (m Multi) OnInstall(id string) {
	for _, r := range m {
		r.OnInstall(id)
	}
}

func (m Multi) OnUninstall(id string, removed, skipped int, err error) {
	for _, r := range m {
		r.OnUninstall(id, removed, skipped, err)
	}
}

func (m Multi) OnDiagnostic(kind, name, message string) {
	for _, r := range m {
		r.OnDiagnostic(kind, name, message)
	}
}

// OrNoop returns r, or NoopReporter when r is nil.
func OrNoop(r Reporter) Reporter {
	if r == nil {
		return NoopReporter{}
	}
	return r
}

var (
	_ Reporter = NoopReporter{}
	_ Reporter = Multi(nil)
)
