package upstream

import (
	"context"
	"net/url"
)

// FetchProtocols returns the full protocols list with parent groupings and
// per-chain TVL snapshots.
func (c *Client) FetchProtocols(ctx context.Context) (*ProtocolsResponse, error) {
	var out ProtocolsResponse
	u := c.baseURL + "/lite/protocols2?b=2"
	if err := c.getJSON(ctx, "tvl", "protocols", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchProtocol returns the full per-chain TVL history of one protocol.
func (c *Client) FetchProtocol(ctx context.Context, slug string) (*ProtocolDetail, error) {
	var out ProtocolDetail
	u := c.baseURL + "/updatedProtocol/" + url.PathEscape(slug)
	if err := c.getJSON(ctx, "tvl", "protocol", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
