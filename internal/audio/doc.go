// Package audio turns raw capture and stream input into fixed-length mono
// 16 kHz float32 chunks. It holds the sample converter (downmix, resample,
// normalize), the bounded frame queue between a driver callback and the
// processing loop, the chunker, and the WAV helpers used for debugging dumps
// and remote uploads.
package audio
