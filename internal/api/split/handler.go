package split

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"defilens/internal/adapters/config"
	"defilens/internal/domain/split"
	splitsvc "defilens/internal/services/split"
	"defilens/pkg/errors"
	"defilens/pkg/logger"
)

// Handler serves the split API endpoints.
type Handler struct {
	svc   *splitsvc.Service
	cache *ResultCache
	cfg   config.SplitConfig
	log   *logger.Logger
}

// NewHandler creates the split API handler.
func NewHandler(svc *splitsvc.Service, cache *ResultCache, cfg config.SplitConfig) *Handler {
	return &Handler{
		svc:   svc,
		cache: cache,
		cfg:   cfg,
		log:   logger.Get().With("component", "split_api"),
	}
}

// Register mounts the split routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("/api/split/dimensions", h.wrap(h.handleDimensions))
	mux.Handle("/api/split/tvl", h.wrap(h.handleTvl))
	mux.Handle("/api/split/protocol-chain", h.wrap(h.handleProtocolChain))
}

// wrap enforces GET and tags every request with an ID.
func (h *Handler) wrap(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			h.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
			return
		}
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next(w, r)
	})
}

func (h *Handler) handleDimensions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := splitsvc.DimensionsParams{
		Metric:        q.Get("metric"),
		Chains:        parseList(q.Get("chains")),
		Categories:    parseList(q.Get("categories")),
		TopN:          h.parseLimit(r),
		GroupByParent: parseBool(q.Get("groupByParent")),
		FilterMode:    split.ParseFilterMode(q.Get("filterMode")),
	}

	key := cacheKey("dimensions",
		"metric", p.Metric,
		"chains", joinCanonical(p.Chains),
		"categories", joinCanonical(p.Categories),
		"limit", strconv.Itoa(p.TopN),
		"filterMode", string(p.FilterMode),
		"groupByParent", strconv.FormatBool(p.GroupByParent),
	)
	if h.serveCached(r.Context(), w, key) {
		return
	}

	result, err := h.svc.DimensionsSplit(r.Context(), p)
	if err != nil {
		h.writeSplitError(w, err)
		return
	}
	h.writeResult(r.Context(), w, key, result)
}

func (h *Handler) handleTvl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := splitsvc.TvlParams{
		Chains:        parseList(q.Get("chains")),
		Categories:    parseList(q.Get("categories")),
		TopN:          h.parseLimit(r),
		GroupByParent: parseBool(q.Get("groupByParent")),
		FilterMode:    split.ParseFilterMode(q.Get("filterMode")),
	}

	key := cacheKey("tvl",
		"chains", joinCanonical(p.Chains),
		"categories", joinCanonical(p.Categories),
		"limit", strconv.Itoa(p.TopN),
		"filterMode", string(p.FilterMode),
		"groupByParent", strconv.FormatBool(p.GroupByParent),
	)
	if h.serveCached(r.Context(), w, key) {
		return
	}

	result, err := h.svc.TvlSplit(r.Context(), p)
	if err != nil {
		h.writeSplitError(w, err)
		return
	}
	h.writeResult(r.Context(), w, key, result)
}

func (h *Handler) handleProtocolChain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	protocol := q.Get("protocol")
	if protocol == "" {
		protocol = "All"
	}
	metric := q.Get("metric")
	if metric == "" {
		metric = "tvl"
	}

	if split.IsChainOnlyMetric(metric) && !strings.EqualFold(protocol, "all") {
		h.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("metric %s is chain-scoped and cannot be combined with a protocol", metric), "")
		return
	}

	p := splitsvc.ProtocolChainParams{
		Protocol:                   protocol,
		Metric:                     metric,
		Chains:                     parseList(q.Get("chains")),
		TopN:                       h.parseLimit(r),
		ChainFilterMode:            split.ParseFilterMode(q.Get("filterMode")),
		ChainCategoryFilterMode:    split.ParseFilterMode(q.Get("chainCategoryFilterMode")),
		ProtocolCategoryFilterMode: split.ParseFilterMode(q.Get("protocolCategoryFilterMode")),
		ChainCategories:            parseList(q.Get("chainCategories")),
		ProtocolCategories:         parseList(q.Get("protocolCategories")),
	}

	key := cacheKey("protocol-chain",
		"protocol", strings.ToLower(p.Protocol),
		"metric", p.Metric,
		"chains", joinCanonical(p.Chains),
		"limit", strconv.Itoa(p.TopN),
		"filterMode", string(p.ChainFilterMode),
		"chainCategories", joinCanonical(p.ChainCategories),
		"chainCategoryFilterMode", string(p.ChainCategoryFilterMode),
		"protocolCategories", joinCanonical(p.ProtocolCategories),
		"protocolCategoryFilterMode", string(p.ProtocolCategoryFilterMode),
	)
	if h.serveCached(r.Context(), w, key) {
		return
	}

	result, err := h.svc.ProtocolChainSplit(r.Context(), p)
	if err != nil {
		h.writeSplitError(w, err)
		return
	}
	h.writeResult(r.Context(), w, key, result)
}

// parseLimit reads the limit parameter, falling back to the default and
// capping at the configured maximum.
func (h *Handler) parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.cfg.DefaultLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return h.cfg.DefaultLimit
	}
	return min(n, h.cfg.MaxLimit)
}

// parseList splits a comma-separated parameter. "All" entries mean no
// filter and are dropped.
func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, "all") {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseBool(raw string) bool {
	return raw == "true" || raw == "1"
}

func cacheKey(endpoint string, pairs ...string) string {
	var b strings.Builder
	b.WriteString("split:")
	b.WriteString(endpoint)
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString("|")
		b.WriteString(pairs[i])
		b.WriteString("=")
		b.WriteString(pairs[i+1])
	}
	return b.String()
}

// joinCanonical lowercases and sorts list values so equivalent queries
// share one cache entry.
func joinCanonical(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	for i, v := range values {
		sorted[i] = strings.ToLower(v)
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

func (h *Handler) serveCached(ctx context.Context, w http.ResponseWriter, key string) bool {
	data, ok := h.cache.Get(ctx, key)
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "hit")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	return true
}

func (h *Handler) writeResult(ctx context.Context, w http.ResponseWriter, key string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode response", err.Error())
		return
	}
	h.cache.Set(ctx, key, data)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) writeSplitError(w http.ResponseWriter, err error) {
	if errors.Is(err, errors.ErrUnsupportedMetric) {
		h.writeError(w, http.StatusBadRequest, "unsupported metric", err.Error())
		return
	}
	h.log.Error("Split request failed", "error", err)
	h.writeError(w, http.StatusInternalServerError, "split request failed", err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := map[string]string{"error": message}
	if details != "" {
		resp["details"] = details
	}
	_ = json.NewEncoder(w).Encode(resp)
}
