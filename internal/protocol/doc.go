// Package protocol writes the service's outbound wire format: one JSON object
// per line for status notices, warnings, errors and transcript events, plus
// the one-shot device listing.
package protocol
