// Package selfupdate keeps the snapup executable current.
//
// The checker asks a GitHub-style release feed for the latest tag and
// compares it with the running build by numeric normalisation ("6.1" is
// "61"). Branch builds ("master") are never compared and can always be
// replaced on request. The installer downloads the platform asset to a
// temporary file and swaps it in with go-update. It does not check the
// asset's signature; that is the integrity check's job.
package selfupdate
