package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/cloudvfs/internal/storage"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// Size unit constants for human-readable formatting.
const (
	sizeKB = 1024
	sizeMB = 1024 * 1024
	sizeGB = 1024 * 1024 * 1024
	sizeTB = 1024 * 1024 * 1024 * 1024
)

// formatSize returns a human-readable size string (e.g. "1.2 MB").
func formatSize(bytes int64) string {
	switch {
	case bytes >= sizeTB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/float64(sizeTB))
	case bytes >= sizeGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(sizeGB))
	case bytes >= sizeMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(sizeMB))
	case bytes >= sizeKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(sizeKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// formatTime returns a compact timestamp for display.
func formatTime(t time.Time) string {
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	// Different year: show "Jan  2  2006"
	return t.Format("Jan _2  2006")
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	// Compute column widths.
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	// Print header.
	printRow(w, headers, widths)

	// Print rows.
	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}

// printFilesTable lists files with folders marked by a trailing slash.
func printFilesTable(w io.Writer, files []storage.File) {
	rows := make([][]string, 0, len(files))

	for i := range files {
		f := &files[i]

		name := f.Name
		size := formatSize(f.Size)

		switch f.Type {
		case storage.TypeFolder:
			name += "/"
			size = "-"
		case storage.TypeShortcut:
			name += "@"
		}

		if f.Trashed {
			name += " (trashed)"
		}

		rows = append(rows, []string{name, size, formatTime(f.ModifiedTime), f.ID})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED", "ID"}, rows)
}

// printFileDetails writes one file's metadata as key/value lines.
func printFileDetails(w io.Writer, f *storage.File) {
	fmt.Fprintf(w, "Name:     %s\n", f.Name)
	fmt.Fprintf(w, "ID:       %s\n", f.ID)
	fmt.Fprintf(w, "Type:     %s\n", f.Type)
	fmt.Fprintf(w, "MIME:     %s\n", f.MimeType)

	if f.Type != storage.TypeFolder {
		fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(f.Size), f.Size)
	}

	fmt.Fprintf(w, "Parent:   %s\n", f.ParentID)
	fmt.Fprintf(w, "Created:  %s\n", f.CreatedTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Modified: %s\n", f.ModifiedTime.Format(time.RFC3339))

	if f.Description != "" {
		fmt.Fprintf(w, "Desc:     %s\n", f.Description)
	}

	if f.WebViewLink != "" {
		fmt.Fprintf(w, "Link:     %s\n", f.WebViewLink)
	}

	if f.Trashed {
		fmt.Fprintln(w, "Trashed:  yes")
	}
}
