package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// driveResponse mirrors the Graph API drive JSON response.
// Unexported; callers use Drive via toDrive() normalization.
type driveResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	DriveType string      `json:"driveType"`
	Quota     *quotaFacet `json:"quota"`
}

// quotaFacet represents the quota block in a Graph API drive response.
type quotaFacet struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Deleted   int64 `json:"deleted"`
	Remaining int64 `json:"remaining"`
}

// toDrive normalizes a Graph API drive response into our Drive type.
// Nil-safe for the optional quota facet.
func (d *driveResponse) toDrive() Drive {
	drive := Drive{
		ID:        d.ID,
		Name:      d.Name,
		DriveType: d.DriveType,
	}

	if d.Quota != nil {
		drive.QuotaTotal = d.Quota.Total
		drive.QuotaUsed = d.Quota.Used
		drive.QuotaDeleted = d.Quota.Deleted
		drive.QuotaRemaining = d.Quota.Remaining
	}

	return drive
}

// Drive returns a drive and its quota. An empty driveID fetches the
// signed-in user's default drive.
func (c *Client) Drive(ctx context.Context, driveID string) (*Drive, error) {
	c.logger.Info("fetching drive",
		slog.String("drive_id", driveID),
	)

	resp, err := c.Do(ctx, http.MethodGet, drivePath(driveID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var dr driveResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	drive := dr.toDrive()

	c.logger.Debug("fetched drive",
		slog.String("id", drive.ID),
		slog.String("drive_type", drive.DriveType),
	)

	return &drive, nil
}
