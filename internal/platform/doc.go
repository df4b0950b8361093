// Package platform declares the device collaborators the update pipeline
// talks to: the package registry, the archive metadata reader, the install
// session primitive and the device policy primitive.
//
// The pipeline depends only on these interfaces; package local provides a
// filesystem-backed implementation.
package platform
