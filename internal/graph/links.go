package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

type createLinkRequest struct {
	Type  LinkType `json:"type"`
	Scope string   `json:"scope"`
}

type permissionResponse struct {
	Link struct {
		WebURL string `json:"webUrl"`
	} `json:"link"`
}

// CreateLink creates (or returns the existing) anonymous sharing link of
// the given type. Organizations that disable anonymous links answer 403.
func (c *Client) CreateLink(ctx context.Context, driveID, itemID string, linkType LinkType) (string, error) {
	c.logger.Info("creating sharing link",
		slog.String("drive_id", driveID),
		slog.String("item_id", itemID),
		slog.String("type", string(linkType)),
	)

	resp, err := c.sendJSON(ctx, http.MethodPost, itemPath(driveID, itemID)+"/createLink",
		createLinkRequest{Type: linkType, Scope: "anonymous"})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var pr permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return "", fmt.Errorf("graph: decoding createLink response: %w", err)
	}

	return pr.Link.WebURL, nil
}
