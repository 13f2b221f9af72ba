// Package state implements the bookkeeping an upgrade leaves on disk.
//
// FileRepository stores the last applied build identifier so the next run can
// detect that no new build was published. ScriptWriter arranges the merge
// reminder and the operator's AFTER program for the first boot on the new
// system.
package state
