// Package update contains the core domain types of the self-update pipeline.
//
// It defines the release descriptor resolved from the release index, the
// installed state reported by the device, the version an archive declares,
// the error taxonomy shared by every pipeline component and the rule that
// decides whether an update proceeds.
package update
