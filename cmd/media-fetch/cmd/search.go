package cmd

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-media-fetch/index"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the fetch history index",
	Long: `Runs a Bleve query-string search over the index of fetched posts.
Fields are addressable by their lowercase names, e.g.
'+platform:resolver +kind:video' or '+performer:someartist'.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")
	indexPath := globalConfig.IndexPath
	if indexPath == "" {
		log.Error("IndexPath is not configured; nothing to search.")
		return
	}

	log.Debugf("Opening Bleve index at: %s", indexPath)
	// Open, not OpenOrCreateIndex: searching must not create an empty index.
	bleveIndex, err := bleve.Open(indexPath)
	if err != nil {
		if err == bleve.ErrorIndexPathDoesNotExist {
			log.Errorf("Index not found at %s. Fetch something first to create it.", indexPath)
		} else {
			log.Errorf("Failed to open index at %s: %v", indexPath, err)
		}
		return
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing index: %v", err)
		}
	}()

	searchResults, err := index.SearchIndex(bleveIndex, query)
	if err != nil {
		log.Errorf("Error performing search: %v", err)
		return
	}

	log.Infof("Search finished. Hits: %d, Total: %d, Took: %s",
		len(searchResults.Hits),
		searchResults.Total,
		searchResults.Took)

	if searchResults.Total == 0 {
		fmt.Println("No results found matching your query.")
		return
	}

	fmt.Println("--- Search Results ---")
	for i, hit := range searchResults.Hits {
		fmt.Printf("[%d] ID: %s (Score: %.2f)\n", i+1, hit.ID, hit.Score)
		for field, value := range hit.Fields {
			fmt.Printf("  %s: %v\n", field, value)
		}
		fmt.Println("---")
	}
}
