package upstream

import (
	"context"
	"net/url"
	"strconv"
)

// OverviewRequest identifies one dimensions overview query.
type OverviewRequest struct {
	Endpoint         string
	Chain            string
	DataType         string
	ExcludeBreakdown bool
}

// FetchDimensionsOverview returns the dimensions overview for one metric,
// optionally scoped to a chain.
func (c *Client) FetchDimensionsOverview(ctx context.Context, req OverviewRequest) (*OverviewResponse, error) {
	u := c.dimensionsURL + "/overview/" + url.PathEscape(req.Endpoint)
	if req.Chain != "" {
		u += "/" + url.PathEscape(req.Chain)
	}
	q := url.Values{}
	q.Set("excludeTotalDataChart", "false")
	q.Set("excludeTotalDataChartBreakdown", strconv.FormatBool(req.ExcludeBreakdown))
	if req.DataType != "" {
		q.Set("dataType", req.DataType)
	}
	u += "?" + q.Encode()

	var out OverviewResponse
	if err := c.getJSON(ctx, "dimensions", "overview", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchDimensionsSummary returns the dimensions chart for a single protocol
// or chain.
func (c *Client) FetchDimensionsSummary(ctx context.Context, endpoint, protocol, dataType string) (*SummaryResponse, error) {
	u := c.dimensionsURL + "/summary/" + url.PathEscape(endpoint) + "/" + url.PathEscape(protocol)
	if dataType != "" {
		u += "?dataType=" + url.QueryEscape(dataType)
	}
	var out SummaryResponse
	if err := c.getJSON(ctx, "dimensions", "summary", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
