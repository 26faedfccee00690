package transcript

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eduardohotta/cortex/internal/engine"
)

// Provider is the fixed provider tag on every event
const Provider = "faster-whisper"

const (
	minTextRunes   = 2
	repeatMinRunes = 10
)

// Drop reasons
const (
	DropEmpty         = "empty"
	DropShort         = "short"
	DropHallucination = "hallucination"
	DropRepeat        = "repeat"
	DropLowConfidence = "low_confidence"
)

// DefaultHallucinations are phrases models produce on silence or noise.
// Matching is a case-insensitive substring test.
var DefaultHallucinations = []string{
	"obrigado",
	"obrigada",
	"amara.org",
	"legendas pela comunidade",
	"legendado por",
	"legendas por",
	"inscreva-se",
	"thanks for watching",
	"thank you for watching",
	"subtitles by",
	"please subscribe",
	"subtítulos realizados por",
	"gracias por ver",
	"sous-titres réalisés par",
	"untertitel im auftrag",
}

// Event is one transcript line
type Event struct {
	Text     string `json:"text"`
	IsFinal  bool   `json:"isFinal"`
	Language string `json:"language"`
	Provider string `json:"provider"`

	Start float64 `json:"-"`
	End   float64 `json:"-"`
}

// Config contains post-processing thresholds
type Config struct {
	MinAvgLogProb float64
	MergeGap      time.Duration
	// MaxMergedChars caps the rune length of a merged event. 0 disables it.
	MaxMergedChars int
	// ExtraHallucinations are appended to DefaultHallucinations
	ExtraHallucinations []string
}

// DefaultConfig returns the default thresholds
func DefaultConfig() Config {
	return Config{
		MinAvgLogProb:  -1.0,
		MergeGap:       800 * time.Millisecond,
		MaxMergedChars: 480,
	}
}

// Result is the outcome of processing one engine call
type Result struct {
	Events   []Event
	LastText string         // text of the last accepted segment
	Dropped  map[string]int // by drop reason
	Merged   int
}

// Processor filters and merges engine segments. It holds no per-stream state:
// the last accepted text is passed in and returned so the owner of the
// stream controls it.
type Processor struct {
	config  Config
	phrases []string
}

// NewProcessor creates a post-processor
func NewProcessor(config Config) *Processor {
	var phrases []string
	for _, list := range [][]string{DefaultHallucinations, config.ExtraHallucinations} {
		for _, p := range list {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				phrases = append(phrases, p)
			}
		}
	}
	return &Processor{config: config, phrases: phrases}
}

// Process runs the filters over segs in order and merges fragments that
// continue the previous sentence. lastText is the last accepted segment text
// from the previous call.
func (p *Processor) Process(segs []engine.Segment, language, lastText string) Result {
	res := Result{LastText: lastText, Dropped: map[string]int{}}

	for _, seg := range segs {
		text := strings.TrimSpace(seg.Text)
		if reason := p.reject(text, seg, res.LastText); reason != "" {
			res.Dropped[reason]++
			continue
		}
		res.LastText = text

		if n := len(res.Events); n > 0 && p.shouldMerge(&res.Events[n-1], text, seg) {
			prev := &res.Events[n-1]
			prev.Text += " " + text
			prev.End = seg.End
			res.Merged++
			continue
		}

		res.Events = append(res.Events, Event{
			Text:     text,
			IsFinal:  true,
			Language: language,
			Provider: Provider,
			Start:    seg.Start,
			End:      seg.End,
		})
	}
	return res
}

// reject returns the reason text must be dropped, or ""
func (p *Processor) reject(text string, seg engine.Segment, lastText string) string {
	if text == "" {
		return DropEmpty
	}
	n := utf8.RuneCountInString(text)
	if n < minTextRunes {
		return DropShort
	}
	if p.IsHallucination(text) {
		return DropHallucination
	}
	if n > repeatMinRunes && text == lastText {
		return DropRepeat
	}
	if seg.AvgLogProb < p.config.MinAvgLogProb {
		return DropLowConfidence
	}
	return ""
}

// shouldMerge reports whether text continues prev: prev does not end a
// sentence, the gap is short, and the result stays under the length cap.
func (p *Processor) shouldMerge(prev *Event, text string, seg engine.Segment) bool {
	last, _ := utf8.DecodeLastRuneInString(prev.Text)
	switch last {
	case '.', '?', '!', ':':
		return false
	}
	gap := time.Duration((seg.Start - prev.End) * float64(time.Second))
	if gap >= p.config.MergeGap {
		return false
	}
	if max := p.config.MaxMergedChars; max > 0 &&
		utf8.RuneCountInString(prev.Text)+1+utf8.RuneCountInString(text) > max {
		return false
	}
	return true
}

// IsHallucination reports whether text contains a known hallucination phrase
func (p *Processor) IsHallucination(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range p.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
