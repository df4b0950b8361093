// Package scratch manages the transient files a pipeline run downloads into.
//
// Each phase owns one fixed file name inside the scratch folder. Use acquires
// the file for the duration of a callback and removes it on every exit path,
// so no artifact outlives the call that created it. Cache optionally keeps a
// per-run copy of downloads keyed by URL.
package scratch
