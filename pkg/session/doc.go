// Package session persists browser cookies between runs so a profile can be
// revisited without logging in again.
//
// Each session id maps to one JSON file under the data directory
// (XDG_DATA_HOME/igharvest/sessions on Linux). Writes are atomic: the set is
// encoded to a temporary file, synced, then renamed over the old one.
//
// A set older than the configured max age (24h by default) is deleted on
// load. Individual cookies whose own expiry has passed are skipped.
package session
