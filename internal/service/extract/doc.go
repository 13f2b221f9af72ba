// Package extract unpacks release sets onto the live root filesystem.
//
// Sets are gzip-compressed tar archives. Regular files are written to a
// temporary sibling and renamed over the old file, so running programs keep
// their old inode. Permissions, modification times and, when running as
// root, ownership follow the archive.
package extract
