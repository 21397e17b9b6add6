package main

import (
	"compress/bzip2"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/glance-auth/glance/pkg/logging"
	"github.com/glance-auth/glance/pkg/models"
)

func downloadModels(modelDir string) error {
	logging.Infof("Downloading models to: %s", modelDir)

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, name := range models.RequiredFiles {
		targetPath := filepath.Join(modelDir, name)
		if _, err := os.Stat(targetPath); err == nil {
			logging.Infof("Model %s already exists, skipping", name)
			continue
		}

		url, ok := models.DownloadURLs[name]
		if !ok {
			return fmt.Errorf("no download URL known for %s", name)
		}

		logging.Infof("Downloading %s...", name)
		if err := downloadAndExtract(url, targetPath); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
		logging.Infof("Successfully downloaded %s", name)
	}

	logging.Info("All models downloaded successfully!")
	return nil
}

func downloadAndExtract(url, targetPath string) error {
	client := &http.Client{Timeout: 10 * time.Minute}

	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	bz2Reader := bzip2.NewReader(resp.Body)
	_, err = io.Copy(out, bz2Reader)
	return err
}
