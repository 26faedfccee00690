package transcription

import "github.com/eduardohotta/cortex/internal/engine"

// Rejection reasons for segments failing the decoding thresholds
const (
	RejectNoSpeech         = "no_speech"
	RejectCompressionRatio = "compression_ratio"
)

// rejectReason applies the decoding thresholds to one segment. A zero
// threshold is disabled. A segment is silence when its no-speech probability
// is above the threshold and its average log-prob is below the log-prob
// threshold; it is repetitive when its compression ratio is too high.
func rejectReason(s engine.Segment, opts engine.Options) string {
	if opts.NoSpeechThreshold != 0 && s.NoSpeechProb > opts.NoSpeechThreshold &&
		(opts.LogProbThreshold == 0 || s.AvgLogProb < opts.LogProbThreshold) {
		return RejectNoSpeech
	}
	if opts.CompressionRatioThreshold != 0 && s.CompressionRatio > opts.CompressionRatioThreshold {
		return RejectCompressionRatio
	}
	return ""
}

// applyThresholds returns the segments that pass and the rejections by reason
func applyThresholds(segments []engine.Segment, opts engine.Options) ([]engine.Segment, map[string]int) {
	var rejected map[string]int
	kept := segments[:0:0]
	for _, s := range segments {
		if reason := rejectReason(s, opts); reason != "" {
			if rejected == nil {
				rejected = map[string]int{}
			}
			rejected[reason]++
			continue
		}
		kept = append(kept, s)
	}
	return kept, rejected
}
