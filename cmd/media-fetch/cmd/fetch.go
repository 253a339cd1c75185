package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-media-fetch/index"
	"go-media-fetch/internal/api"
	"go-media-fetch/internal/app"
	"go-media-fetch/internal/delivery"
	"go-media-fetch/internal/downloader"
	"go-media-fetch/internal/fetcher"
	"go-media-fetch/internal/formats"
	"go-media-fetch/internal/history"
	"go-media-fetch/internal/services/direct"
	"go-media-fetch/internal/services/resolver"
	"go-media-fetch/internal/services/streams"
	"go-media-fetch/internal/tasks"
)

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("output", "o", "downloads", "Directory to deliver fetched media into")
	fetchCmd.Flags().StringP("format", "f", "", "Format hint: video or audio (default: fetcher decides)")
	fetchCmd.Flags().Bool("no-history", false, "Skip recording this fetch in the history database")

	viper.BindPFlag("fetch.output", fetchCmd.Flags().Lookup("output"))
	viper.BindPFlag("fetch.format", fetchCmd.Flags().Lookup("format"))
	viper.BindPFlag("fetch.no_history", fetchCmd.Flags().Lookup("no-history"))
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Fetch one URL and deliver its media locally",
	Long: `Fetches the given URL through the first registered fetcher that
supports it, then delivers every artifact into the output directory.
Playlists are expanded and fetched track by track.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

// cliReporter prints task outcomes to the terminal. Critical failures
// additionally go to the log, addressed to the operator.
type cliReporter struct {
	operatorID int64
}

func (r *cliReporter) UserMessage(userID int64, text string) {
	fmt.Println(text)
}

func (r *cliReporter) NotifyOperator(url, diagnostic string) {
	log.WithField("operator", r.operatorID).Errorf("Operator notice for %s: %s", url, diagnostic)
}

func runFetch(cmd *cobra.Command, args []string) error {
	url := args[0]
	cfg := globalConfig

	outDir := viper.GetString("fetch.output")
	formatFlag := viper.GetString("fetch.format")
	noHistory := viper.GetBool("fetch.no_history")

	hint := fetcher.HintNone
	switch formatFlag {
	case "":
	case "video":
		hint = fetcher.HintVideo
	case "audio":
		hint = fetcher.HintAudio
	default:
		return fmt.Errorf("unknown format hint %q (want video or audio)", formatFlag)
	}

	tempDir := cfg.DownloadPath
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "media-fetch")
		log.Debugf("DownloadPath not configured, using %s", tempDir)
	}

	httpClient := &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(cfg.ApiClientTimeoutSec) * time.Second,
	}
	ceiling := formats.Ceiling(cfg.ExtendedLimits)
	dl := downloader.NewDownloader(&http.Client{Transport: globalHttpTransport, Timeout: 15 * time.Minute})
	resolverClient := api.NewClient(cfg.ResolverBaseURL, httpClient)

	// Registration order is the dispatch precedence order.
	registry := fetcher.NewRegistry()
	registry.Register("streams", streams.New(resolverClient, dl, tempDir, ceiling))
	registry.Register("resolver", resolver.New(resolverClient, dl, tempDir, ceiling))
	registry.Register("direct", direct.New(dl, tempDir, ceiling))
	log.Debugf("Registered fetchers: %v", registry.Names())

	writer := uilive.New()
	writer.Start()
	defer writer.Stop()

	a := &app.App{
		Registry: registry,
		Tasks:    tasks.NewManager(),
		PoolSize: cfg.FetcherConcurrency,
		Pipeline: delivery.NewPipeline(
			&delivery.LocalTransport{OutDir: outDir, Progress: writer},
			delivery.Options{
				GroupPacing:    time.Duration(cfg.GroupPacingMs) * time.Millisecond,
				DocumentPacing: time.Duration(cfg.DocumentPacingMs) * time.Millisecond,
				CaptionLimit:   cfg.CaptionRuneLimit,
			},
		),
		Reporter:     &cliReporter{operatorID: cfg.OperatorID},
		FetchTimeout: time.Duration(cfg.FetchTimeoutSec) * time.Second,
	}

	if cfg.SaveHistory && !noHistory {
		store, err := history.Open(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer store.Close()
		a.History = store

		idx, err := index.OpenOrCreateIndex(cfg.IndexPath)
		if err != nil {
			log.WithError(err).Warn("Search index unavailable, continuing without it")
		} else {
			defer idx.Close()
			a.Index = idx
		}
	}

	if err := a.HandleURL(0, url, hint); err != nil {
		// The reporter already printed the user-facing message.
		a.Tasks.Wait()
		return err
	}
	a.Tasks.Wait()
	return nil
}
