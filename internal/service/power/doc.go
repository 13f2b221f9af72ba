// Package power reboots the machine after an upgrade.
package power
