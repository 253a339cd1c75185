package formats

import "testing"

const mb = 1024 * 1024

func video(id string, height int, size int64) Stream {
	return Stream{FormatID: id, Ext: "mp4", VideoCodec: "avc1.64001F", Size: size, Height: height}
}

func audio(id string, bitrate int, size int64) Stream {
	return Stream{FormatID: id, VideoCodec: "none", AudioCodec: "mp4a.40.2", Size: size, AudioBitrate: bitrate}
}

func TestSelectPairScenario(t *testing.T) {
	streams := []Stream{
		video("137", 720, 30*mb),
		audio("140", 128, 5*mb),
	}

	pair, ok := SelectPair(streams, 50*mb)
	if !ok {
		t.Fatal("expected a pair under the 50MB ceiling")
	}
	if pair.FormatSpec() != "137+140" {
		t.Errorf("FormatSpec = %q, want 137+140", pair.FormatSpec())
	}

	if _, ok := SelectPair(streams, 10*mb); ok {
		t.Error("expected no pair under the 10MB ceiling")
	}
}

func TestSelectPairSingleAdmissible(t *testing.T) {
	streams := []Stream{
		video("22", 480, 45_000_000),
		audio("140", 128, 4_000_000),
	}
	pair, ok := SelectPair(streams, 50_000_000)
	if !ok {
		t.Fatal("the single admissible pair must be returned")
	}
	if pair.Video.FormatID != "22" || pair.Audio.FormatID != "140" {
		t.Errorf("got pair %s, want 22+140", pair.FormatSpec())
	}
}

func TestSelectPairNone(t *testing.T) {
	tests := []struct {
		name    string
		streams []Stream
	}{
		{"Empty input", nil},
		{"No admissible containers", []Stream{
			{FormatID: "251", Ext: "webm", VideoCodec: "vp9", Size: 10 * mb, Height: 1080},
			{FormatID: "250", VideoCodec: "none", AudioCodec: "opus", Size: 3 * mb, AudioBitrate: 70},
		}},
		{"Sizes unknown", []Stream{
			video("137", 1080, 0),
			audio("140", 128, 0),
		}},
		{"Everything over ceiling", []Stream{
			video("137", 1080, 60*mb),
			audio("140", 128, 10*mb),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := SelectPair(tt.streams, 50*mb); ok {
				t.Error("SelectPair should report no admissible pair")
			}
		})
	}
}

func TestSelectPairScoring(t *testing.T) {
	streams := []Stream{
		video("lo", 360, 5*mb),
		video("hi", 1080, 40*mb),
		video("mid", 720, 20*mb),
		audio("thin", 64, 2*mb),
		audio("fat", 160, 8*mb),
	}

	// 1080p fits only with the thin audio; resolution dominates bitrate.
	pair, ok := SelectPair(streams, 44*mb)
	if !ok {
		t.Fatal("expected a pair")
	}
	if pair.Video.FormatID != "hi" || pair.Audio.FormatID != "thin" {
		t.Errorf("got %s, want hi+thin (resolution outranks bitrate)", pair.FormatSpec())
	}

	// With room to spare the same resolution takes the higher bitrate.
	pair, _ = SelectPair(streams, 50*mb)
	if pair.Video.FormatID != "hi" || pair.Audio.FormatID != "fat" {
		t.Errorf("got %s, want hi+fat", pair.FormatSpec())
	}
}

func TestSelectPairTieBreakFirstWins(t *testing.T) {
	// Two pairs with identical (height, bitrate) scores: the first
	// admissible one in input order must be kept.
	streams := []Stream{
		video("v1", 720, 10*mb),
		video("v2", 720, 12*mb),
		audio("a1", 128, 4*mb),
		audio("a2", 128, 5*mb),
	}
	pair, ok := SelectPair(streams, 50*mb)
	if !ok {
		t.Fatal("expected a pair")
	}
	if pair.Video.FormatID != "v1" || pair.Audio.FormatID != "a1" {
		t.Errorf("tie-break selected %s, want v1+a1", pair.FormatSpec())
	}
}

func TestSelectAudio(t *testing.T) {
	tests := []struct {
		name    string
		streams []Stream
		ceiling int64
		wantID  string
		wantOK  bool
	}{
		{
			name: "Highest bitrate wins",
			streams: []Stream{
				audio("a", 128, 4*mb),
				audio("b", 256, 8*mb),
			},
			ceiling: 50 * mb, wantID: "b", wantOK: true,
		},
		{
			name: "Equal bitrate prefers larger size",
			streams: []Stream{
				audio("small", 128, 3*mb),
				audio("big", 128, 5*mb),
			},
			ceiling: 50 * mb, wantID: "big", wantOK: true,
		},
		{
			name: "Opus admissible for audio-only",
			streams: []Stream{
				{FormatID: "251", VideoCodec: "none", AudioCodec: "opus", Size: 3 * mb, AudioBitrate: 140},
			},
			ceiling: 50 * mb, wantID: "251", wantOK: true,
		},
		{
			name: "Muxed streams excluded",
			streams: []Stream{
				{FormatID: "18", Ext: "mp4", VideoCodec: "avc1", AudioCodec: "mp4a.40.2", Size: 9 * mb, AudioBitrate: 96},
			},
			ceiling: 50 * mb, wantOK: false,
		},
		{
			name:    "Over ceiling",
			streams: []Stream{audio("a", 320, 60 * mb)},
			ceiling: 50 * mb, wantOK: false,
		},
		{
			name: "Unusual codec accepted when nothing preferred exists",
			streams: []Stream{
				{FormatID: "v0", VideoCodec: "none", AudioCodec: "vorbis", Size: 4 * mb, AudioBitrate: 160},
			},
			ceiling: 50 * mb, wantID: "v0", wantOK: true,
		},
		{
			name: "Preferred codec outranks a higher-bitrate unusual one",
			streams: []Stream{
				{FormatID: "v0", VideoCodec: "none", AudioCodec: "vorbis", Size: 6 * mb, AudioBitrate: 320},
				audio("a", 128, 4*mb),
			},
			ceiling: 50 * mb, wantID: "a", wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectAudio(tt.streams, tt.ceiling)
			if ok != tt.wantOK {
				t.Fatalf("SelectAudio ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.FormatID != tt.wantID {
				t.Errorf("SelectAudio = %s, want %s", got.FormatID, tt.wantID)
			}
		})
	}
}

func TestHasVideoCandidate(t *testing.T) {
	tests := []struct {
		name    string
		streams []Stream
		want    bool
	}{
		{"Oversized video still counts", []Stream{video("137", 1080, 90 * mb)}, true},
		{"Audio only", []Stream{audio("140", 128, 4 * mb)}, false},
		{"Wrong container ignored", []Stream{
			{FormatID: "248", Ext: "webm", VideoCodec: "vp9", Size: 20 * mb, Height: 1080},
		}, false},
		{"Unknown size ignored", []Stream{video("137", 720, 0)}, false},
		{"Empty", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasVideoCandidate(tt.streams); got != tt.want {
				t.Errorf("HasVideoCandidate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCeiling(t *testing.T) {
	if Ceiling(false) != DefaultCeiling {
		t.Error("default ceiling expected")
	}
	if Ceiling(true) != ExtendedCeiling {
		t.Error("extended ceiling expected")
	}
}
