// Package updater sequences the kiosk self-update pipeline.
//
// One run probes the installed package, resolves the latest release, decides
// whether to update, downloads and commits the new build through an atomic
// install session, and always finishes by enforcing the device policy. Runs
// are serialized by a Guard and can be started in the background as a Task.
package updater
