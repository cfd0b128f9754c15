package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ErrNoDownloadURL is returned when a drive item has no pre-authenticated download URL.
// This can happen for folders and OneNote packages.
var ErrNoDownloadURL = errors.New("graph: item has no download URL")

// Download streams the content of an already fetched item to w.
// The content comes from the item's pre-authenticated download URL
// (bypassing the Graph API). Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, item *Item, w io.Writer) (int64, error) {
	c.logger.Info("downloading item",
		slog.String("item_id", item.ID),
		slog.Int64("size", item.Size),
	)

	if item.DownloadURL == "" {
		if item.Size == 0 && !item.IsFolder && !item.IsPackage {
			return 0, nil
		}

		c.logger.Warn("item has no download URL",
			slog.String("item_id", item.ID),
			slog.Bool("is_folder", item.IsFolder),
			slog.Bool("is_package", item.IsPackage),
		)

		return 0, ErrNoDownloadURL
	}

	resp, err := c.doPreAuthRetry(ctx, "download", func() (*http.Request, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, http.NoBody)
		if reqErr != nil {
			return nil, fmt.Errorf("graph: creating download request: %w", reqErr)
		}

		req.Header.Set("User-Agent", c.userAgent)

		return req, nil
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, copyErr := io.Copy(w, resp.Body)
	if copyErr != nil {
		c.logger.Error("streaming download content failed",
			slog.String("error", copyErr.Error()),
			slog.Int64("bytes_before_error", n),
		)

		return n, fmt.Errorf("graph: streaming download content: %w", copyErr)
	}

	c.logger.Debug("download complete",
		slog.String("item_id", item.ID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}
