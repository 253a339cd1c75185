package models

type (
	Config struct {
		// Paths
		DownloadPath string `toml:"DownloadPath"`
		HistoryPath  string `toml:"HistoryPath"`
		IndexPath    string `toml:"IndexPath"`

		// Delivery Behavior
		ExtendedLimits     bool `toml:"ExtendedLimits"` // Raises the payload ceiling (self-hosted transport mode)
		GroupPacingMs      int  `toml:"GroupPacingMs"`
		DocumentPacingMs   int  `toml:"DocumentPacingMs"`
		CaptionRuneLimit   int  `toml:"CaptionRuneLimit"`
		FetchTimeoutSec    int  `toml:"FetchTimeoutSec"`
		FetcherConcurrency int  `toml:"FetcherConcurrency"` // Worker pool size per fetcher kind

		// Resolver service (short-link platforms are resolved through it)
		ResolverBaseURL string `toml:"ResolverBaseURL"`

		// Operator escalation
		OperatorID int64 `toml:"OperatorID"`

		// Other
		LogApiRequests      bool `toml:"LogApiRequests"`
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`
		SaveHistory         bool `toml:"SaveHistory"`
	}

	// MediaKind discriminates the deliverable artifact types.
	MediaKind string

	// MediaContent describes one deliverable artifact produced by a fetcher.
	// The local file is ephemeral: the delivery pipeline owns it for
	// deletion purposes regardless of delivery outcome.
	MediaContent struct {
		Kind             MediaKind `json:"kind"`
		LocalPath        string    `json:"localPath"`
		Width            int       `json:"width,omitempty"`
		Height           int       `json:"height,omitempty"`
		Duration         int       `json:"duration,omitempty"` // Seconds
		Title            string    `json:"title,omitempty"`
		Performer        string    `json:"performer,omitempty"`
		CoverPath        string    `json:"coverPath,omitempty"` // Audio thumbnail
		PreserveOriginal bool      `json:"preserveOriginal,omitempty"`
	}

	// HistoryEntry is the per-fetch record stored in the history database.
	HistoryEntry struct {
		URL          string `json:"url"`
		Platform     string `json:"platform"`
		Kind         string `json:"kind"`
		Title        string `json:"title,omitempty"`
		Performer    string `json:"performer,omitempty"`
		SizeBytes    int64  `json:"sizeBytes,omitempty"`
		Timestamp    int64  `json:"timestamp"`
		Status       string `json:"status"`
		ErrorDetails string `json:"errorDetails,omitempty"`
	}
)

const (
	KindVideo MediaKind = "video"
	KindPhoto MediaKind = "photo"
	KindAudio MediaKind = "audio"
	KindGif   MediaKind = "gif"
)

// History Status Constants
const (
	StatusDelivered = "Delivered"
	StatusCancelled = "Cancelled"
	StatusError     = "Error"
)

// IsVisual reports whether the item belongs in a batched media group.
func (m MediaContent) IsVisual() bool {
	return m.Kind == KindVideo || m.Kind == KindPhoto
}

// Files returns every local path owned by this item (artifact plus cover).
func (m MediaContent) Files() []string {
	files := []string{m.LocalPath}
	if m.CoverPath != "" {
		files = append(files, m.CoverPath)
	}
	return files
}
