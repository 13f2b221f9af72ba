// Package packager signs snapup release executables.
//
// Every snapup-<os>-<arch> file of a distribution directory gets a detached
// signify signature, which is what snapup --integrity-check verifies, and
// the whole directory is summarised in a signed SHA256.sig manifest. The
// files are then uploaded to the release feed by hand.
package packager
