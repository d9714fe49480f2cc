// Package install places built wheels into a Python environment.
//
// [Installer.InstallOne] unpacks a wheel through the artifact store, places
// its files using the configured [LinkMode], writes the installer metadata
// (INSTALLER, REQUESTED, direct_url.json, the source stamp for local trees)
// and commits RECORD last. RECORD is what makes a distribution exist for the
// next scan, so an install interrupted before the commit leaves files that
// are not registered as installed, and the installer removes them on the
// way out when it can.
//
// # Wheel Layout
//
// Files at the top of the wheel go to site-packages. Files under the
// optional <name>-<version>.data/ directory are routed by scheme:
//
//	purelib, platlib  site-packages
//	scripts           <prefix>/bin (a "#!python" shebang is rewritten)
//	data              <prefix>
//	headers           <prefix>/include/<name>
//
// No placed file may land outside the environment prefix.
//
// # Bytecode
//
// [Installer.Install] compiles the installed .py files after every wheel is
// placed. Compilation is best effort: failures come back as [CompileError]
// values and never fail the install.
package install
