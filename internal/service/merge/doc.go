// Package merge runs sysmerge(8) to reconcile /etc with the new sets.
package merge
