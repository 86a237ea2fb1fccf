package asr

// RawSegment is one recognizer output unit: a span of speech with start/end
// times in seconds. Values are immutable once emitted by an engine.
type RawSegment struct {
	// Start is the segment onset in seconds from the beginning of the audio.
	Start float64

	// End is the segment offset in seconds. Start <= End always holds;
	// zero-duration segments are a recognizer artifact dropped downstream.
	End float64

	// Text is the transcribed content, whitespace-trimmed.
	Text string

	// Words contains word-level timing when the engine provides it.
	// May be nil.
	Words []Word
}

// Word holds word-level timing detail from engines that support it.
type Word struct {
	Token string
	Start float64
	End   float64
}

// Duration returns the segment length in seconds.
func (s RawSegment) Duration() float64 {
	return s.End - s.Start
}
