// Package sitepackages models an environment's installed distributions.
//
// [Scan] reads every *.dist-info directory under a site-packages root and
// builds a [SitePackages] snapshot keyed by normalized project name. A broken
// distribution never aborts the scan: it becomes a [Diagnostic] and, where
// the directory still has a RECORD, an entry whose metadata is marked
// unusable. Only an unreadable root is fatal.
//
// [Satisfies] compares one resolved requirement with one installed
// distribution and returns a [SatisfiesResult]. The result is a closed set
// of variants ([Satisfied], [Mismatch], [OutOfDate], [Unusable]); callers
// switch on the concrete type.
//
// The snapshot is taken once per run. Installs and uninstalls update it
// through [SitePackages.Add] and [SitePackages.Remove] instead of rescanning.
package sitepackages
