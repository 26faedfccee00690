// Package transcript turns raw engine segments into the transcript events
// the service publishes.
package transcript
