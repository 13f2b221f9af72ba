// Package config resolves the immutable run configuration of an upgrade.
//
// Values come from three places, in increasing precedence: built-in
// defaults (plus /etc/installurl for the mirror), a flat KEY=value
// configuration file (rc, YAML or TOML syntax) and command-line flags. The
// result is a Config value built once at startup and handed to every
// component; nothing downstream reads process state on its own.
package config
