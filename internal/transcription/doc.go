// Package transcription owns the speech engine and the service state around
// it. The Worker runs at most one inference at a time and implements the
// one-way GPU to CPU fallback: on a model load failure, or a hardware failure
// during inference, a GPU-class engine is reloaded on the CPU with int8
// weights and the failed call is retried once. A second failure is fatal.
package transcription
