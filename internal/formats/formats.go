// Package formats picks encoded-stream combinations that fit under the
// delivery transport's payload ceiling.
package formats

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// Payload ceilings imposed by the delivery transport. The extended
// ceiling applies when the transport runs in self-hosted mode.
const (
	DefaultCeiling  int64 = 50 * 1024 * 1024
	ExtendedCeiling int64 = 100 * 1024 * 1024
)

// Stream is one encoded candidate as reported by the upstream platform.
// Size 0 means the platform did not report a byte size; such candidates
// are never admissible.
type Stream struct {
	FormatID     string
	Ext          string // Container (e.g. "mp4", "webm")
	VideoCodec   string // e.g. "avc1.64001F", "" or "none" for audio-only
	AudioCodec   string // e.g. "mp4a.40.2", "opus"
	Size         int64  // Known or estimated byte size
	Height       int    // Vertical resolution, video streams
	AudioBitrate int    // kbps, audio streams
}

func (s Stream) hasVideo() bool {
	return s.VideoCodec != "" && s.VideoCodec != "none"
}

func (s Stream) hasAudio() bool {
	return s.AudioCodec != "" && s.AudioCodec != "none"
}

// Pair is an admissible (video, audio) combination.
type Pair struct {
	Video Stream
	Audio Stream
}

// CombinedSize is the total payload the pair produces after muxing.
func (p Pair) CombinedSize() int64 {
	return p.Video.Size + p.Audio.Size
}

// FormatSpec renders the pair as a downloader format expression
// ("<video_id>+<audio_id>").
func (p Pair) FormatSpec() string {
	return p.Video.FormatID + "+" + p.Audio.FormatID
}

// SelectPair returns the best (video, audio) pair whose combined size
// fits under ceiling, or ok=false when no pair is admissible.
//
// Video candidates are restricted to mp4/AVC with a known size; audio
// candidates to mp4 audio (AAC family) with a known size. Every cross
// pair is scored by (video height, audio bitrate) descending
// lexicographically. Candidate sets are tens of entries at most, so the
// exhaustive scan is fine. A later pair replaces the champion only on a
// strictly greater score, which makes the tie-break deterministic:
// first-seen wins.
func SelectPair(streams []Stream, ceiling int64) (Pair, bool) {
	var videos, audios []Stream
	for _, s := range streams {
		if s.Size <= 0 {
			continue
		}
		if isVideoCandidate(s) {
			videos = append(videos, s)
		}
		if s.hasAudio() && !s.hasVideo() && strings.HasPrefix(s.AudioCodec, "mp4a") {
			audios = append(audios, s)
		}
	}

	log.Debugf("Stream selection: %d video and %d audio candidates under consideration", len(videos), len(audios))

	var best Pair
	bestHeight, bestBitrate := -1, -1
	found := false

	for _, v := range videos {
		for _, a := range audios {
			if v.Size+a.Size > ceiling {
				continue
			}
			if v.Height > bestHeight || (v.Height == bestHeight && a.AudioBitrate > bestBitrate) {
				best = Pair{Video: v, Audio: a}
				bestHeight, bestBitrate = v.Height, a.AudioBitrate
				found = true
			}
		}
	}

	if !found {
		log.Debugf("No admissible stream pair under ceiling %d bytes", ceiling)
		return Pair{}, false
	}
	return best, true
}

// SelectAudio returns the best audio-only stream under ceiling, or
// ok=false when none fits. Same filter-then-score shape as SelectPair
// with a single axis: bitrate first, then size, strict-greater
// replacement. AAC-family and opus streams are preferred; when none of
// those exists the scan repeats with the codec filter dropped, so
// platforms serving unusual codecs still yield a stream.
func SelectAudio(streams []Stream, ceiling int64) (Stream, bool) {
	if best, ok := selectAudioWhere(streams, ceiling, func(s Stream) bool {
		return strings.HasPrefix(s.AudioCodec, "mp4a") || s.AudioCodec == "opus"
	}); ok {
		return best, true
	}

	best, ok := selectAudioWhere(streams, ceiling, func(Stream) bool { return true })
	if !ok {
		log.Debugf("No admissible audio stream under ceiling %d bytes", ceiling)
	}
	return best, ok
}

func selectAudioWhere(streams []Stream, ceiling int64, admit func(Stream) bool) (Stream, bool) {
	var best Stream
	bestBitrate, bestSize := -1, int64(-1)
	found := false

	for _, s := range streams {
		if s.Size <= 0 || s.Size > ceiling {
			continue
		}
		if !s.hasAudio() || s.hasVideo() {
			continue
		}
		if !admit(s) {
			continue
		}
		if s.AudioBitrate > bestBitrate || (s.AudioBitrate == bestBitrate && s.Size > bestSize) {
			best = s
			bestBitrate, bestSize = s.AudioBitrate, s.Size
			found = true
		}
	}

	return best, found
}

// HasVideoCandidate reports whether any stream passes SelectPair's
// video filter at all, ignoring the ceiling. Distinguishes a post that
// has video but nothing admissible from a post with no video to begin
// with.
func HasVideoCandidate(streams []Stream) bool {
	for _, s := range streams {
		if s.Size > 0 && isVideoCandidate(s) {
			return true
		}
	}
	return false
}

func isVideoCandidate(s Stream) bool {
	return s.hasVideo() && s.Ext == "mp4" && strings.HasPrefix(s.VideoCodec, "avc1")
}

// Ceiling returns the payload ceiling for the deployment mode.
func Ceiling(extended bool) int64 {
	if extended {
		return ExtendedCeiling
	}
	return DefaultCeiling
}
