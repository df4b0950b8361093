// Package config defines the settings used by the kiosk binaries and provides
// helpers to load, validate and save them in YAML format.
//
// Validate fills defaults for every optional key, so a loaded Config is ready
// to wire the update pipeline without further checks.
package config
