package cmd

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/internal/helpers"
	"go-media-fetch/internal/history"
	"go-media-fetch/internal/models"
)

var historyStatusFilter string

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyForgetCmd)

	historyListCmd.Flags().StringVar(&historyStatusFilter, "status", "", "Only show entries with this status (Delivered, Cancelled, Error)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the fetch history database",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded fetches",
	Run:   runHistoryList,
}

var historyForgetCmd = &cobra.Command{
	Use:   "forget [url]",
	Short: "Remove one URL from the history database",
	Args:  cobra.ExactArgs(1),
	Run:   runHistoryForget,
}

func openHistory() *history.Store {
	if globalConfig.HistoryPath == "" {
		log.Error("HistoryPath is not configured.")
		return nil
	}
	store, err := history.Open(globalConfig.HistoryPath)
	if err != nil {
		log.WithError(err).Error("Failed to open history database")
		return nil
	}
	return store
}

func runHistoryList(cmd *cobra.Command, args []string) {
	store := openHistory()
	if store == nil {
		return
	}
	defer store.Close()

	var total int
	err := store.Fold(func(entry models.HistoryEntry) error {
		if historyStatusFilter != "" && entry.Status != historyStatusFilter {
			return nil
		}
		total++
		when := time.Unix(entry.Timestamp, 0).Format("2006-01-02 15:04")
		line := fmt.Sprintf("[%s] %-9s %-10s %s", when, entry.Status, entry.Platform, entry.URL)
		if entry.Title != "" {
			line += fmt.Sprintf("  (%s)", helpers.TruncateString(entry.Title, 60))
		}
		if entry.SizeBytes > 0 {
			line += "  " + helpers.BytesToSize(uint64(entry.SizeBytes))
		}
		fmt.Println(line)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Error iterating history entries")
		return
	}
	fmt.Printf("%d entr(y/ies) listed.\n", total)
}

func runHistoryForget(cmd *cobra.Command, args []string) {
	store := openHistory()
	if store == nil {
		return
	}
	defer store.Close()

	url := args[0]
	if err := store.Delete(url); err != nil {
		if err == history.ErrNotFound {
			log.Warnf("No history entry for %s", url)
		} else {
			log.WithError(err).Errorf("Failed to delete history entry for %s", url)
		}
		return
	}
	log.Infof("Removed history entry for %s", url)
}
