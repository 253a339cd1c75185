package index

import (
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-media-fetch/internal/models"
)

const defaultIndexPath = "media-fetch.bleve"

// Item represents one fetched post in the search index.
// All fields are indexed and searchable using their lowercase JSON tag
// names (e.g., query '+platform:soundcloud' or '+performer:someartist').
type Item struct {
	ID        string    `json:"id"`       // blake3-derived history key, hex encoded
	URL       string    `json:"url"`      // Source URL as submitted
	Platform  string    `json:"platform"` // Fetcher that handled the URL
	Kind      string    `json:"kind"`     // video / photo / audio / gif
	Title     string    `json:"title,omitempty"`
	Performer string    `json:"performer,omitempty"`
	Status    string    `json:"status"` // Delivered / Cancelled / Error
	SizeBytes float64   `json:"sizeBytes,omitempty"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

// FromHistory builds an index Item from a history entry and its storage
// key.
func FromHistory(key string, entry models.HistoryEntry) Item {
	return Item{
		ID:        key,
		URL:       entry.URL,
		Platform:  entry.Platform,
		Kind:      entry.Kind,
		Title:     entry.Title,
		Performer: entry.Performer,
		Status:    entry.Status,
		SizeBytes: float64(entry.SizeBytes),
		FetchedAt: time.Unix(entry.Timestamp, 0).UTC(),
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	idx, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Infof("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, fmt.Errorf("creating index at %s: %w", indexPath, err)
		}
	} else if err != nil {
		return nil, err // Other error opening index
	} else {
		log.Debugf("Opened existing index at: %s", indexPath)
	}
	return idx, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(idx bleve.Index, item Item) error {
	return idx.Index(item.ID, item)
}

// SearchIndex performs a search query against the index.
func SearchIndex(idx bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"} // Request all stored fields
	searchResults, err := idx.Search(searchRequest)
	if err != nil {
		return nil, err
	}
	return searchResults, nil
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Warnf("Deleting index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
