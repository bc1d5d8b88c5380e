package meta

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CollectionEndpoint is the ad-account-scoped path used for creates and
// remote listings ("campaigns", "adsets", "ads", "adcreatives").
func (c *Client) CollectionEndpoint(collection string) string {
	return "/" + c.accountID + "/" + collection
}

// NodeEndpoint addresses a single remote object by its id.
func NodeEndpoint(remoteID string) string {
	return "/" + remoteID
}

// AccountInfo fetches the ad account object itself.
func (c *Client) AccountInfo(ctx context.Context) (*Result, error) {
	return c.Call(ctx, http.MethodGet, NodeEndpoint(c.accountID), nil)
}

// ListRemoteCampaigns returns the platform's own campaign listing for the
// account. The mirror is not consulted.
func (c *Client) ListRemoteCampaigns(ctx context.Context) (*Result, error) {
	return c.Call(ctx, http.MethodGet, c.CollectionEndpoint("campaigns"), nil)
}

// ListRemoteAdSets returns the platform's ad sets under a campaign.
func (c *Client) ListRemoteAdSets(ctx context.Context, campaignID string) (*Result, error) {
	return c.Call(ctx, http.MethodGet, NodeEndpoint(campaignID)+"/adsets", nil)
}

// CreativeSpec is the input for the ad creative that must exist before an
// ad can be created.
type CreativeSpec struct {
	Title    string
	Content  string
	Link     string
	MediaURL string
}

// CreateCreative creates the ad creative on the remote platform. Ads are a
// two-step create: creative first, then the ad referencing it.
func (c *Client) CreateCreative(ctx context.Context, spec CreativeSpec) (*Result, error) {
	linkData := map[string]interface{}{
		"message": spec.Content,
		"link":    spec.Link,
		"name":    spec.Title,
	}
	if spec.MediaURL != "" {
		linkData["picture"] = spec.MediaURL
	}

	body := map[string]interface{}{
		"name": fmt.Sprintf("Creative_%d", time.Now().UnixMilli()),
		"object_story_spec": map[string]interface{}{
			"page_id":   c.pageID,
			"link_data": linkData,
		},
	}
	return c.Call(ctx, http.MethodPost, c.CollectionEndpoint("adcreatives"), body)
}
