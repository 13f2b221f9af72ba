// Package release models what an upgrade run downloads: the mirror target,
// the ordered installable sets, the kernel images and the build identifier,
// along with the naming rules of the remote layout.
package release
