// Package stream runs the processing loop: it pulls samples from an audio
// source, cuts them into fixed-length chunks, hands each chunk to the
// transcription worker and writes the post-processed events to a sink.
package stream
