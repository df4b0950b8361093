// Package report implements persistence for the last update run report.
//
// The FileRepository stores the report as protobuf JSON (a google.protobuf.Struct)
// so that operators and the status tool read the same document. The file is
// diagnostics only; no update decision ever reads it back.
package report
