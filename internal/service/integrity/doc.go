// Package integrity verifies the snapup executable itself.
//
// The check uses its own key and signature source, independent from the
// release key that covers OS artifacts. It runs standalone and never
// touches the filesystem beyond a temporary download directory.
package integrity
