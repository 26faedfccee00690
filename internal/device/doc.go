// Package device describes audio devices, finds the default loopback source
// and opens capture streams through a pluggable driver, retrying over a
// ladder of channel counts when a driver rejects the native layout.
package device
