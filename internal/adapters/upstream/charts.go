package upstream

import (
	"context"
	"fmt"

	"defilens/internal/domain/chainmeta"
	"defilens/internal/domain/split"
	"defilens/internal/domain/tvl"
)

// FetchGlobalChart returns the aggregate TVL chart across all chains.
func (c *Client) FetchGlobalChart(ctx context.Context) (*tvl.ChainChart, error) {
	var out tvl.ChainChart
	url := c.baseURL + "/lite/charts"
	if err := c.getJSON(ctx, "tvl", "charts", url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchChainChart returns the TVL chart for one chain, identified by its
// display name.
func (c *Client) FetchChainChart(ctx context.Context, chain string) (*tvl.ChainChart, error) {
	var out tvl.ChainChart
	url := c.baseURL + "/lite/charts/" + chainmeta.FormatForURL(chainmeta.DisplayName(chain))
	if err := c.getJSON(ctx, "tvl", "charts_chain", url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchChainsTvlOverview returns the current TVL of every chain.
func (c *Client) FetchChainsTvlOverview(ctx context.Context) ([]ChainListing, error) {
	var out []ChainListing
	url := c.baseURL + "/v2/chains"
	if err := c.getJSON(ctx, "tvl", "chains", url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchChainsByCategory returns the chains belonging to one chain category.
func (c *Client) FetchChainsByCategory(ctx context.Context, category string) (*ChainsByCategoryResponse, error) {
	var out ChainsByCategoryResponse
	url := c.baseURL + "/chains2/" + chainmeta.FormatForURL(category)
	if err := c.getJSON(ctx, "tvl", "chains_by_category", url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchCategoryChart returns the TVL chart of one protocol category, across
// all chains when chain is empty.
func (c *Client) FetchCategoryChart(ctx context.Context, category, chain string) (*CategoryChartResponse, error) {
	var out CategoryChartResponse
	url := fmt.Sprintf("%s/charts/categories/%s", c.baseURL, split.Slug(category))
	endpoint := "category_chart_all"
	if chain != "" {
		url += "/" + split.Slug(chain)
		endpoint = "category_chart_chain"
	}
	if err := c.getJSON(ctx, "tvl", endpoint, url, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
