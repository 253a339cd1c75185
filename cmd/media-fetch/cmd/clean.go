package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(cleanCmd)

	cleanCmd.Flags().BoolP("all", "a", false, "Remove every file in the download directory, not just .tmp leftovers")
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove temporary (.tmp) files from the download directory",
	Long: `Recursively scans the configured DownloadPath and removes any files
ending with the .tmp extension. A crashed fetch can leave these behind;
a clean shutdown never does.`,
	Run: runClean,
}

func runClean(cmd *cobra.Command, args []string) {
	downloadPath := globalConfig.DownloadPath
	cleanAll, _ := cmd.Flags().GetBool("all")

	if downloadPath == "" {
		log.Error("DownloadPath is not configured. Cannot determine where to clean.")
		os.Exit(1)
	}
	info, err := os.Stat(downloadPath)
	if os.IsNotExist(err) {
		log.Errorf("DownloadPath directory does not exist: %s", downloadPath)
		os.Exit(1)
	}
	if err != nil {
		log.Errorf("Error accessing DownloadPath %q: %v", downloadPath, err)
		os.Exit(1)
	}
	if !info.IsDir() {
		log.Errorf("DownloadPath is not a directory: %s", downloadPath)
		os.Exit(1)
	}

	if cleanAll {
		log.Infof("Scanning for leftover files in %s...", downloadPath)
	} else {
		log.Infof("Scanning for .tmp files in %s...", downloadPath)
	}

	var removed, failed int64

	walkErr := filepath.Walk(downloadPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			log.Warnf("Error accessing path %q during scan: %v", path, err)
			return nil
		}
		if info.IsDir() {
			return nil // Skip directories
		}

		if !cleanAll && !strings.HasSuffix(strings.ToLower(info.Name()), ".tmp") {
			return nil
		}

		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				log.Warnf("Attempted to remove %q, but it was already gone.", path)
			} else {
				log.Errorf("Failed to remove %q: %v", path, err)
				failed++
			}
		} else {
			log.Infof("Removed: %s", path)
			removed++
		}
		return nil // Continue walking
	})

	if walkErr != nil {
		log.Errorf("Error during directory walk of %q: %v", downloadPath, walkErr)
	}

	summary := fmt.Sprintf("Clean complete. Removed %d file(s)", removed)
	if failed > 0 {
		summary += fmt.Sprintf(", failed to remove %d file(s)", failed)
	}
	log.Info(summary + ".")

	if failed > 0 || walkErr != nil {
		os.Exit(1)
	}
}
