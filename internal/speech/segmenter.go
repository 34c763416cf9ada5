package speech

import "time"

// Window is one time slice of a recording queued for transcription.
// Samples hold raw PCM16LE mono bytes; Overlap is how much of the start is
// shared with the previous window.
type Window struct {
	Index      int
	Samples    []byte
	Start      time.Duration
	End        time.Duration
	Overlap    time.Duration
	SampleRate int
}

// SegmentConfig tunes the duration-tiered windowing policy. Zero values
// fall back to the package defaults.
type SegmentConfig struct {
	// Overlap is carried into the start of every window after the first so
	// a word spoken across a boundary lands whole in at least one window.
	Overlap time.Duration
	// MinWindow drops trailing slivers too short to contain a word.
	MinWindow time.Duration
}

const (
	// Recordings at or below this duration skip segmentation entirely.
	directPassThrough = 12 * time.Second
	// Tier boundary between medium and long recordings.
	longRecording = 90 * time.Second

	mediumWindow = 20 * time.Second
	longWindow   = 12 * time.Second

	defaultOverlap   = 500 * time.Millisecond
	defaultMinWindow = 300 * time.Millisecond

	bytesPerSample = 2 // PCM16
)

// SegmentPCM splits a PCM16LE mono buffer into overlapping windows in
// temporal order. Short recordings come back as a single window covering
// the whole buffer.
func SegmentPCM(pcm []byte, sampleRate int, cfg SegmentConfig) []Window {
	if len(pcm) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	overlap := cfg.Overlap
	if overlap <= 0 {
		overlap = defaultOverlap
	}
	minWindow := cfg.MinWindow
	if minWindow <= 0 {
		minWindow = defaultMinWindow
	}

	total := pcmDuration(len(pcm), sampleRate)
	window := windowForDuration(total)
	if window == 0 || total <= window {
		return []Window{{
			Index:      0,
			Samples:    pcm,
			Start:      0,
			End:        total,
			SampleRate: sampleRate,
		}}
	}
	if overlap >= window {
		overlap = window / 4
	}

	var (
		windows []Window
		start   time.Duration
	)
	for start < total {
		end := start + window
		if end > total {
			end = total
		}
		ov := overlap
		if start == 0 {
			ov = 0
		}
		if end-start >= minWindow {
			windows = append(windows, Window{
				Index:      len(windows),
				Samples:    pcm[byteOffset(start, sampleRate):byteOffset(end, sampleRate)],
				Start:      start,
				End:        end,
				Overlap:    ov,
				SampleRate: sampleRate,
			})
		}
		if end == total {
			break
		}
		// The next window rewinds by the overlap to re-cover the boundary.
		start = end - overlap
	}
	return windows
}

// windowForDuration picks the window size tier: short recordings pass
// through untouched, longer ones get progressively smaller windows to
// raise parallelism.
func windowForDuration(total time.Duration) time.Duration {
	switch {
	case total <= directPassThrough:
		return 0
	case total <= longRecording:
		return mediumWindow
	default:
		return longWindow
	}
}

func pcmDuration(numBytes, sampleRate int) time.Duration {
	samples := numBytes / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// byteOffset converts a timestamp to a buffer offset aligned to a whole
// sample so windows never split a 16-bit frame.
func byteOffset(at time.Duration, sampleRate int) int {
	samples := int(at * time.Duration(sampleRate) / time.Second)
	return samples * bytesPerSample
}
