package split

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defilens/internal/domain/split"
	"defilens/internal/domain/timeseries"
)

func TestTvlSplitAllChains(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [
				{"name": "Alpha", "tvl": 100, "chainTvls": {"Ethereum": {"tvl": 100}}},
				{"name": "Beta", "tvl": 40, "chainTvls": {"Ethereum": {"tvl": 40}}}
			],
			"parentProtocols": []
		}`)
	})
	mux.HandleFunc("/updatedProtocol/alpha", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{
			"name": "Alpha",
			"chainTvls": {
				"Ethereum": {"tvl": [
					{"date": %d, "totalLiquidityUSD": 90},
					{"date": %d, "totalLiquidityUSD": 100}
				]},
				"staking": {"tvl": [{"date": %d, "totalLiquidityUSD": 999}]}
			}
		}`, day1, day2, day1))
	})
	mux.HandleFunc("/lite/charts", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{"tvl": [[%d, 150], [%d, 160]]}`, day1, day2))
	})

	svc := testService(t, mux)
	result, err := svc.TvlSplit(context.Background(), TvlParams{TopN: 1, FilterMode: split.FilterInclude})
	require.NoError(t, err)

	require.Len(t, result.Series, 2)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 90}, {Ts: day2, Value: 100}}, result.Series[0].Data)
	assert.Equal(t, "Others (1 protocols)", result.Series[1].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 60}, {Ts: day2, Value: 60}}, result.Series[1].Data)

	assert.Equal(t, "All", result.Metadata.Chain)
	assert.Equal(t, []string{"All"}, result.Metadata.Chains)
	assert.Equal(t, 2, result.Metadata.TotalProtocols)
	assert.Equal(t, 1, result.Metadata.OthersCount)
}

func TestTvlSplitExcludeChainSubtractsFromTotal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [
				{"name": "Alpha", "tvl": 100, "chainTvls": {"Ethereum": {"tvl": 40}, "Polygon": {"tvl": 60}}},
				{"name": "Beta", "tvl": 30, "chainTvls": {"Polygon": {"tvl": 30}}}
			],
			"parentProtocols": []
		}`)
	})
	mux.HandleFunc("/updatedProtocol/alpha", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{
			"name": "Alpha",
			"chainTvls": {
				"Ethereum": {"tvl": [{"date": %d, "totalLiquidityUSD": 40}, {"date": %d, "totalLiquidityUSD": 30}]},
				"Polygon": {"tvl": [{"date": %d, "totalLiquidityUSD": 50}, {"date": %d, "totalLiquidityUSD": 55}]}
			}
		}`, day1, day2, day1, day2))
	})
	mux.HandleFunc("/lite/charts", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{"tvl": [[%d, 100], [%d, 100]]}`, day1, day2))
	})
	mux.HandleFunc("/lite/charts/Ethereum", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{"tvl": [[%d, 40], [%d, 30]]}`, day1, day2))
	})

	svc := testService(t, mux)
	result, err := svc.TvlSplit(context.Background(), TvlParams{
		Chains:     []string{"Ethereum"},
		TopN:       1,
		FilterMode: split.FilterExclude,
	})
	require.NoError(t, err)

	require.Len(t, result.Series, 2)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	// Only the non-excluded chain contributes to the protocol series.
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 50}, {Ts: day2, Value: 55}}, result.Series[0].Data)
	// Total is the global chart minus the excluded chain's chart:
	// [100-40, 100-30] = [60, 70], leaving [10, 15] for Others.
	assert.Equal(t, "Others (1 protocols)", result.Series[1].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 10}, {Ts: day2, Value: 15}}, result.Series[1].Data)

	assert.Equal(t, []string{"Ethereum"}, result.Metadata.Chains)
	assert.Equal(t, 2, result.Metadata.TotalProtocols)
}

func TestTvlSplitGroupByParent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [
				{"name": "A V1", "tvl": 50, "parentProtocol": "parent#a", "chainTvls": {"Ethereum": {"tvl": 50}}},
				{"name": "A V2", "tvl": 40, "parentProtocol": "parent#a", "chainTvls": {"Ethereum": {"tvl": 40}}},
				{"name": "B", "tvl": 60, "chainTvls": {"Ethereum": {"tvl": 60}}}
			],
			"parentProtocols": [{"id": "parent#a", "name": "Family A"}]
		}`)
	})
	mux.HandleFunc("/updatedProtocol/family-a", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{
			"name": "Family A",
			"chainTvls": {"Ethereum": {"tvl": [{"date": %d, "totalLiquidityUSD": 90}, {"date": %d, "totalLiquidityUSD": 95}]}}
		}`, day1, day2))
	})
	mux.HandleFunc("/updatedProtocol/b", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{
			"name": "B",
			"chainTvls": {"Ethereum": {"tvl": [{"date": %d, "totalLiquidityUSD": 60}, {"date": %d, "totalLiquidityUSD": 62}]}}
		}`, day1, day2))
	})
	mux.HandleFunc("/lite/charts", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{"tvl": [[%d, 150], [%d, 160]]}`, day1, day2))
	})

	svc := testService(t, mux)
	result, err := svc.TvlSplit(context.Background(), TvlParams{
		TopN:          2,
		GroupByParent: true,
		FilterMode:    split.FilterInclude,
	})
	require.NoError(t, err)

	// Children rank individually but collapse into one family slot:
	// B (60) first, then Family A (via A V1 at 50); A V2 dedups into the
	// already-picked family.
	require.GreaterOrEqual(t, len(result.Series), 2)
	assert.Equal(t, "B", result.Series[0].Name)
	assert.Equal(t, "Family A", result.Series[1].Name)
	assert.Equal(t, 2, result.Metadata.TotalProtocols)
	assert.Equal(t, 0, result.Metadata.OthersCount)
}

func TestTvlSplitNoMatchingProtocols(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [{"name": "Alpha", "tvl": 0, "chainTvls": {}}], "parentProtocols": []}`)
	})

	svc := testService(t, mux)
	result, err := svc.TvlSplit(context.Background(), TvlParams{TopN: 5, FilterMode: split.FilterInclude})
	require.NoError(t, err)

	assert.Empty(t, result.Series)
	assert.Equal(t, []string{"All"}, result.Metadata.Chains)
	assert.Zero(t, result.Metadata.TotalProtocols)
	assert.Zero(t, result.Metadata.OthersCount)
	assert.Equal(t, 5, result.Metadata.TopN)
}

func TestTvlSplitMissingProtocolDetailTolerated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [{"name": "Alpha", "tvl": 100, "chainTvls": {"Ethereum": {"tvl": 100}}}],
			"parentProtocols": []
		}`)
	})
	mux.HandleFunc("/updatedProtocol/alpha", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/lite/charts", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, fmt.Sprintf(`{"tvl": [[%d, 150], [%d, 160]]}`, day1, day2))
	})

	svc := testService(t, mux)
	result, err := svc.TvlSplit(context.Background(), TvlParams{TopN: 1, FilterMode: split.FilterInclude})
	require.NoError(t, err)

	// A protocol whose detail payload is gone contributes an empty series;
	// its TVL shows up in Others instead of aborting the whole split.
	require.Len(t, result.Series, 2)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	assert.Equal(t, "Others (0 protocols)", result.Series[1].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 150}, {Ts: day2, Value: 160}}, result.Series[1].Data)
}
