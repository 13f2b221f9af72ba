// Package kernel backs up, installs and restores the kernel images on the
// root filesystem.
//
// Every copy goes to a temporary sibling first and is renamed into place, so
// a path always holds either the old or the new file. Backup and rollback
// attempt every pair and report all failures together.
package kernel
