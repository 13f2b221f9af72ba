// Package fetch retrieves single remote files into a download directory.
//
// A file that already exists under its final name counts as fetched. New
// transfers go to a hidden temporary name and are renamed only after they
// complete, so an interrupted transfer never looks finished. The transfer
// itself is pluggable: the built-in HTTP client, or ftp(1) when the operator
// configured FTP_OPTS.
package fetch
