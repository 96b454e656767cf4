package upstream

import "context"

// FetchStablecoinDominanceAll returns per-chain stablecoin circulating-USD
// charts for every chain.
func (c *Client) FetchStablecoinDominanceAll(ctx context.Context) (*DominanceAllResponse, error) {
	var out DominanceAllResponse
	u := c.stablecoinsURL + "/stablecoincharts2/all-dominance-chain-breakdown"
	if err := c.getJSON(ctx, "stablecoins", "dominance_all", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchStablecoinChartAll returns the aggregate stablecoin mcap chart.
func (c *Client) FetchStablecoinChartAll(ctx context.Context) (*StablecoinChartAllResponse, error) {
	var out StablecoinChartAllResponse
	u := c.stablecoinsURL + "/stablecoincharts2/all"
	if err := c.getJSON(ctx, "stablecoins", "chart_all", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
