// Package checker reports the update status of a kiosk device.
//
// It combines the installed package version, the last persisted run report
// and the live health status of the update agent.
package checker
