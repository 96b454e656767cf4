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

func TestDimensionsSplitTopNWithOthers(t *testing.T) {
	breakdown := fmt.Sprintf(`[
		[%d, {"Alpha": 100, "Beta": 80, "Gamma": 60, "Delta": 40, "Epsilon": 20}],
		[%d, {"Alpha": 100, "Beta": 80, "Gamma": 60, "Delta": 40, "Epsilon": 20}],
		[%d, {"Alpha": 100, "Beta": 80, "Gamma": 60, "Delta": 40, "Epsilon": 20}]
	]`, day1, day2, day3)

	mux := http.NewServeMux()
	mux.HandleFunc("/overview/fees", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "totalDataChart": [], "totalDataChartBreakdown": `+breakdown+`}`)
	})
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "parentProtocols": []}`)
	})

	svc := testService(t, mux)
	result, err := svc.DimensionsSplit(context.Background(), DimensionsParams{
		Metric:     "fees",
		TopN:       3,
		FilterMode: split.FilterInclude,
	})
	require.NoError(t, err)

	require.Len(t, result.Series, 4)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	assert.Equal(t, "Beta", result.Series[1].Name)
	assert.Equal(t, "Gamma", result.Series[2].Name)
	assert.Equal(t, "Others (2 protocols)", result.Series[3].Name)
	assert.Equal(t, split.OthersColor, result.Series[3].Color)

	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 100}, {Ts: day2, Value: 100}, {Ts: day3, Value: 100}}, result.Series[0].Data)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 60}, {Ts: day2, Value: 60}, {Ts: day3, Value: 60}}, result.Series[3].Data)

	assert.Equal(t, "all", result.Metadata.Chain)
	assert.Equal(t, 3, result.Metadata.TopN)
	assert.Equal(t, 5, result.Metadata.TotalProtocols)
	assert.Equal(t, 2, result.Metadata.OthersCount)
	assert.Nil(t, result.Metadata.MarketSector)
}

func TestDimensionsSplitGroupByParent(t *testing.T) {
	breakdown := fmt.Sprintf(`[
		[%d, {"A V1": 50, "A V2": 30, "B": 60}],
		[%d, {"A V1": 50, "A V2": 30, "B": 60}],
		[%d, {"A V1": 50, "A V2": 30, "B": 60}]
	]`, day1, day2, day3)

	mux := http.NewServeMux()
	mux.HandleFunc("/overview/dexs", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "totalDataChart": [], "totalDataChartBreakdown": `+breakdown+`}`)
	})
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [
				{"name": "A V1", "parentProtocol": "parent#a"},
				{"name": "A V2", "parentProtocol": "parent#a"},
				{"name": "B"}
			],
			"parentProtocols": [{"id": "parent#a", "name": "Family A"}]
		}`)
	})

	svc := testService(t, mux)
	result, err := svc.DimensionsSplit(context.Background(), DimensionsParams{
		Metric:        "volume",
		TopN:          1,
		GroupByParent: true,
		FilterMode:    split.FilterInclude,
	})
	require.NoError(t, err)

	require.Len(t, result.Series, 2)
	assert.Equal(t, "Family A", result.Series[0].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 80}, {Ts: day2, Value: 80}, {Ts: day3, Value: 80}}, result.Series[0].Data)
	assert.Equal(t, "Others (1 protocols)", result.Series[1].Name)
	assert.Equal(t, []timeseries.Point{{Ts: day1, Value: 60}, {Ts: day2, Value: 60}, {Ts: day3, Value: 60}}, result.Series[1].Data)

	assert.Equal(t, 2, result.Metadata.TotalProtocols)
	assert.Equal(t, 1, result.Metadata.OthersCount)
}

func TestDimensionsSplitCategoryFilter(t *testing.T) {
	breakdown := fmt.Sprintf(`[
		[%d, {"Alpha": 100, "Beta": 40}],
		[%d, {"Alpha": 100, "Beta": 40}]
	]`, day1, day2)

	mux := http.NewServeMux()
	mux.HandleFunc("/overview/fees", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "totalDataChart": [], "totalDataChartBreakdown": `+breakdown+`}`)
	})
	mux.HandleFunc("/lite/protocols2", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{
			"protocols": [
				{"name": "Alpha", "category": "Dexs"},
				{"name": "Beta", "category": "Lending"}
			],
			"parentProtocols": []
		}`)
	})

	svc := testService(t, mux)
	result, err := svc.DimensionsSplit(context.Background(), DimensionsParams{
		Metric:     "fees",
		Categories: []string{"Dexs"},
		TopN:       5,
		FilterMode: split.FilterInclude,
	})
	require.NoError(t, err)

	// Beta is filtered out of both the ranking and the per-day totals, so
	// there is nothing left over for an Others bucket.
	require.Len(t, result.Series, 1)
	assert.Equal(t, "Alpha", result.Series[0].Name)
	assert.Equal(t, 1, result.Metadata.TotalProtocols)
	assert.Equal(t, []string{"dexs"}, result.Metadata.Categories)
	require.NotNil(t, result.Metadata.MarketSector)
	assert.Equal(t, "dexs", *result.Metadata.MarketSector)
}

func TestDimensionsSplitNoDataForIncludedChains(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	svc := testService(t, mux)
	result, err := svc.DimensionsSplit(context.Background(), DimensionsParams{
		Metric:     "fees",
		Chains:     []string{"solana"},
		TopN:       5,
		FilterMode: split.FilterInclude,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Series)
	assert.Equal(t, "No data available for chains: solana", result.Metadata.Error)
	assert.Zero(t, result.Metadata.TotalProtocols)
}

func TestDimensionsSplitTooFewTimestamps(t *testing.T) {
	breakdown := fmt.Sprintf(`[[%d, {"Alpha": 100}]]`, day1)

	mux := http.NewServeMux()
	mux.HandleFunc("/overview/fees", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, `{"protocols": [], "totalDataChart": [], "totalDataChartBreakdown": `+breakdown+`}`)
	})

	svc := testService(t, mux)
	result, err := svc.DimensionsSplit(context.Background(), DimensionsParams{
		Metric:     "fees",
		TopN:       5,
		FilterMode: split.FilterInclude,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Series)
	assert.Empty(t, result.Metadata.Error)
}

func TestDimensionsSplitUnsupportedMetric(t *testing.T) {
	svc := testService(t, http.NewServeMux())
	_, err := svc.DimensionsSplit(context.Background(), DimensionsParams{Metric: "nope", TopN: 5})
	require.Error(t, err)
}
