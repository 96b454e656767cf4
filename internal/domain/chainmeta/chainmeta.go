// Package chainmeta normalizes chain identifiers across the upstream APIs.
// The TVL API, the dimensions API and the UI each use their own naming
// convention for the same chain (e.g. "BSC" vs "bsc" vs "binance"); the
// mappings here are lossy in places, so filter matching is done through
// best-effort alias sets rather than exact equality.
package chainmeta

import (
	"net/url"
	"regexp"
	"strings"
)

// displayNameMap maps lowercased raw identifiers to the canonical display name.
var displayNameMap = map[string]string{
	"op mainnet": "OP Mainnet",
	"op-mainnet": "OP Mainnet",
	"optimism":   "OP Mainnet",

	"gnosis": "Gnosis",
	"xdai":   "Gnosis",

	"hyperliquid l1": "Hyperliquid L1",
	"hyperliquid":    "Hyperliquid L1",
	"hyperliquid-l1": "Hyperliquid L1",
	"hyperliquid_l1": "Hyperliquid L1",

	"zksync era": "ZKsync Era",
	"zksync":     "ZKsync Era",
	"zksync-era": "ZKsync Era",
	"zksync_era": "ZKsync Era",
	"era":        "ZKsync Era",

	"polygon zkevm": "Polygon zkEVM",
	"polygon-zkevm": "Polygon zkEVM",
	"polygon_zkevm": "Polygon zkEVM",

	"immutable zkevm": "Immutable zkEVM",
	"immutable-zkevm": "Immutable zkEVM",
	"immutable_zkevm": "Immutable zkEVM",
	"imx":             "Immutable zkEVM",
	"immutablex":      "Immutable zkEVM",

	"cronos zkevm": "Cronos zkEVM",
	"cronos-zkevm": "Cronos zkEVM",
	"cronos_zkevm": "Cronos zkEVM",

	"arbitrum nova": "Arbitrum Nova",
	"arbitrum-nova": "Arbitrum Nova",
	"arbitrum_nova": "Arbitrum Nova",

	"bsc":                 "BSC",
	"binance":             "BSC",
	"binance smart chain": "BSC",

	"avalanche": "Avalanche",
	"avax":      "Avalanche",

	"cosmoshub": "CosmosHub",
	"cosmos":    "CosmosHub",

	"pulsechain": "PulseChain",
	"pulse":      "PulseChain",

	"eos evm": "EOS EVM",
	"eos":     "EOS EVM",

	"ethereum":  "Ethereum",
	"arbitrum":  "Arbitrum",
	"polygon":   "Polygon",
	"base":      "Base",
	"solana":    "Solana",
	"bitcoin":   "Bitcoin",
	"tron":      "Tron",
	"sui":       "Sui",
	"aptos":     "Aptos",
	"ton":       "TON",
	"near":      "Near",
	"fantom":    "Fantom",
	"celo":      "Celo",
	"moonbeam":  "Moonbeam",
	"moonriver": "Moonriver",
	"harmony":   "Harmony",
	"cronos":    "Cronos",
	"kava":      "Kava",
	"linea":     "Linea",
	"scroll":    "Scroll",
	"mantle":    "Mantle",
	"blast":     "Blast",
	"mode":      "Mode",
	"manta":     "Manta",
	"sei":       "Sei",
	"injective": "Injective",
	"osmosis":   "Osmosis",
	"starknet":  "Starknet",
	"ronin":     "Ronin",
	"metis":     "Metis",
	"boba":      "Boba",
	"aurora":    "Aurora",
	"canto":     "Canto",
	"evmos":     "Evmos",
	"klaytn":    "Klaytn",
	"fuse":      "Fuse",
	"astar":     "Astar",
	"telos":     "Telos",
	"zora":      "Zora",
	"fraxtal":   "Fraxtal",
	"taiko":     "Taiko",
	"zklink":    "zkLink",
	"bob":       "BOB",
	"merlin":    "Merlin",
	"berachain": "Berachain",
	"sonic":     "Sonic",
	"abstract":  "Abstract",
	"ink":       "Ink",
	"unichain":  "Unichain",
	"soneium":   "Soneium",
	"morph":     "Morph",
	"corn":      "Corn",
	"hemi":      "Hemi",
	"sophon":    "Sophon",
	"dydx":      "dYdX",
	"hedera":    "Hedera",
	"cardano":   "Cardano",
	"algorand":  "Algorand",
	"flow":      "Flow",
	"icp":       "ICP",
	"tezos":     "Tezos",
	"waves":     "Waves",
	"stellar":   "Stellar",
	"ripple":    "Ripple",
	"filecoin":  "Filecoin",
	"flare":     "Flare",
	"thorchain": "Thorchain",
	"stacks":    "Stacks",

	"opbnb":  "opBNB",
	"op_bnb": "opBNB",
	"op-bnb": "opBNB",

	"x layer": "X Layer",
	"x-layer": "X Layer",
	"xlayer":  "X Layer",

	"sx network": "SX Network",
	"sx-network": "SX Network",
	"sx_network": "SX Network",
	"sxnetwork":  "SX Network",

	"shimmerevm":  "ShimmerEVM",
	"shimmer_evm": "ShimmerEVM",
	"shimmer-evm": "ShimmerEVM",

	"iota evm": "IOTA EVM",
	"iota-evm": "IOTA EVM",
	"iotaevm":  "IOTA EVM",
	"iota_evm": "IOTA EVM",

	"plume mainnet": "Plume Mainnet",
	"plume-mainnet": "Plume Mainnet",
	"plume_mainnet": "Plume Mainnet",

	"asset chain": "Asset Chain",
	"asset-chain": "Asset Chain",
	"assetchain":  "Asset Chain",

	"defichain evm": "DeFiChain EVM",
	"defichain-evm": "DeFiChain EVM",
	"defichain_evm": "DeFiChain EVM",

	"zero network": "Zero Network",
	"zero-network": "Zero Network",
	"zero_network": "Zero Network",

	"ethereumclassic":  "EthereumClassic",
	"ethereum-classic": "EthereumClassic",
	"ethereum_classic": "EthereumClassic",

	"godwokenv1":  "GodwokenV1",
	"godwoken_v1": "GodwokenV1",
	"godwoken-v1": "GodwokenV1",

	"ontologyevm":  "OntologyEVM",
	"ontology_evm": "OntologyEVM",
	"ontology-evm": "OntologyEVM",

	"off chain": "Off Chain",
	"off-chain": "Off Chain",
	"off_chain": "Off Chain",

	"bitcoincash":  "Bitcoincash",
	"bitcoin-cash": "Bitcoincash",
	"bitcoin_cash": "Bitcoincash",

	"goat": "GOAT",

	"grvt": "GRVT",

	"edgex": "edgeX",

	"soonbase":  "soonBase",
	"soon_base": "soonBase",

	"xrpl evm": "XRPL EVM",
	"xrpl-evm": "XRPL EVM",
	"xrplevm":  "XRPL EVM",
	"xrpl_evm": "XRPL EVM",
}

// displayToDimensionsSlug maps canonical display names to the slug the
// dimensions overview/summary API expects in URLs.
var displayToDimensionsSlug = map[string]string{
	"OP Mainnet":      "optimism",
	"Gnosis":          "xdai",
	"Hyperliquid L1":  "hyperliquid",
	"ZKsync Era":      "era",
	"Polygon zkEVM":   "polygon_zkevm",
	"Immutable zkEVM": "imx",
	"Cronos zkEVM":    "cronos_zkevm",
	"Arbitrum Nova":   "arbitrum_nova",
	"BSC":             "bsc",
	"Avalanche":       "avax",
	"CosmosHub":       "cosmoshub",
	"PulseChain":      "pulse",
}

// dimensionsSlugToOverview maps dimensions-API slugs back to the chain
// names the overview payloads report.
var dimensionsSlugToOverview = map[string]string{
	"optimism":        "OP Mainnet",
	"xdai":            "Gnosis",
	"hyperliquid":     "Hyperliquid L1",
	"era":             "ZKsync Era",
	"zksync":          "ZKsync Era",
	"polygon_zkevm":   "Polygon zkEVM",
	"imx":             "Immutable zkEVM",
	"cronos_zkevm":    "Cronos zkEVM",
	"arbitrum_nova":   "Arbitrum Nova",
	"avax":            "Avalanche",
	"bsc":             "BSC",
	"pulse":           "PulseChain",
	"cosmoshub":       "CosmosHub",
	"opbnb":           "opBNB",
	"op_bnb":          "opBNB",
	"xlayer":          "X Layer",
	"sx_network":      "SX Network",
	"shimmer_evm":     "ShimmerEVM",
	"iotaevm":         "IOTA EVM",
	"iota_evm":        "IOTA EVM",
	"plume_mainnet":   "Plume Mainnet",
	"assetchain":      "Asset Chain",
	"defichain_evm":   "DeFiChain EVM",
	"zero_network":    "Zero Network",
	"ethereumclassic": "EthereumClassic",
	"godwoken_v1":     "GodwokenV1",
	"ontology_evm":    "OntologyEVM",
	"off_chain":       "Off Chain",
	"soon_base":       "soonBase",
	"xrplevm":         "XRPL EVM",
	"xrpl_evm":        "XRPL EVM",
}

// internalSlugMap maps irregular identifiers to the URL slug used by the
// TVL chart endpoints.
var internalSlugMap = map[string]string{
	"optimism":        "op-mainnet",
	"op mainnet":      "op-mainnet",
	"binance":         "bsc",
	"xdai":            "gnosis",
	"cosmos":          "cosmoshub",
	"pulse":           "pulsechain",
	"hyperliquid":     "hyperliquid-l1",
	"hyperliquid l1":  "hyperliquid-l1",
	"hyperliquid_l1":  "hyperliquid-l1",
	"zksync":          "zksync-era",
	"zksync era":      "zksync-era",
	"zksync_era":      "zksync-era",
	"era":             "zksync-era",
	"polygon zkevm":   "polygon-zkevm",
	"polygon_zkevm":   "polygon-zkevm",
	"immutable zkevm": "immutable-zkevm",
	"immutable_zkevm": "immutable-zkevm",
	"imx":             "immutable-zkevm",
	"immutablex":      "immutable-zkevm",
	"cronos zkevm":    "cronos-zkevm",
	"cronos_zkevm":    "cronos-zkevm",
	"arbitrum nova":   "arbitrum-nova",
	"arbitrum_nova":   "arbitrum-nova",
	"avax":            "avalanche",
}

// Aliases lists known alternate spellings per canonical display name.
var Aliases = map[string][]string{
	"OP Mainnet":      {"Optimism", "optimism", "op mainnet", "op-mainnet"},
	"BSC":             {"Binance", "binance", "bsc"},
	"Gnosis":          {"xDai", "xdai"},
	"CosmosHub":       {"Cosmos", "cosmos"},
	"PulseChain":      {"Pulse", "pulse"},
	"EOS EVM":         {"EOS", "eos"},
	"Avalanche":       {"avax", "AVAX"},
	"ZKsync Era":      {"zksync", "era", "zksync-era", "zksync_era", "zkSync Era"},
	"Polygon zkEVM":   {"polygon_zkevm", "polygon-zkevm"},
	"Immutable zkEVM": {"imx", "immutable_zkevm", "immutable-zkevm"},
	"Cronos zkEVM":    {"cronos_zkevm", "cronos-zkevm"},
	"Arbitrum Nova":   {"arbitrum_nova", "arbitrum-nova"},
	"Hyperliquid L1":  {"Hyperliquid", "hyperliquid", "hyperliquid-l1", "hyperliquid_l1"},
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)
var whitespace = regexp.MustCompile(`\s+`)

// DisplayName returns the canonical display name for any known raw
// identifier. Unknown identifiers pass through unchanged.
func DisplayName(chain string) string {
	if chain == "" {
		return ""
	}
	lc := strings.ToLower(strings.TrimSpace(chain))
	if name, ok := displayNameMap[lc]; ok {
		return name
	}
	return chain
}

// InternalSlug converts a chain identifier to the slug used in TVL chart
// URLs. The conversion is lossy: distinct display names can collide.
func InternalSlug(chain string) string {
	if chain == "" {
		return ""
	}
	lc := strings.ToLower(strings.TrimSpace(chain))
	if slug, ok := internalSlugMap[lc]; ok {
		return slug
	}
	slug := nonSlugChars.ReplaceAllString(whitespace.ReplaceAllString(lc, "-"), "")
	if mapped, ok := internalSlugMap[slug]; ok {
		return mapped
	}
	return slug
}

// DimensionsSlug converts a chain identifier to the slug the dimensions
// API expects in its URL path.
func DimensionsSlug(chain string) string {
	if chain == "" {
		return ""
	}
	name := DisplayName(chain)
	if slug, ok := displayToDimensionsSlug[name]; ok {
		return slug
	}
	return whitespace.ReplaceAllString(strings.ToLower(name), "_")
}

// FromDimensionsSlug converts a dimensions-API slug back to the chain name
// overview payloads use. Unknown slugs are title-cased word by word.
func FromDimensionsSlug(slug string) string {
	if slug == "" {
		return ""
	}
	if name, ok := dimensionsSlugToOverview[strings.ToLower(slug)]; ok {
		return name
	}
	words := strings.Split(strings.ReplaceAll(slug, "_", "-"), "-")
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// FormatForURL percent-escapes chain names containing spaces.
func FormatForURL(chain string) string {
	if chain == "" {
		return ""
	}
	if strings.Contains(chain, " ") {
		return url.PathEscape(chain)
	}
	return chain
}

// SameChain reports whether two identifiers refer to the same chain after
// display-name normalization.
func SameChain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return DisplayName(a) == DisplayName(b)
}

// MatchSet builds a best-effort membership set for chain filtering: each
// input contributes its raw form, lowercased form, display name and
// dimensions slug. Callers test membership instead of comparing strings.
func MatchSet(chains []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, chain := range chains {
		if chain == "" {
			continue
		}
		set[chain] = struct{}{}
		set[strings.ToLower(chain)] = struct{}{}
		normalized := DisplayName(chain)
		set[normalized] = struct{}{}
		set[strings.ToLower(normalized)] = struct{}{}
		if slug := DimensionsSlug(chain); slug != "" {
			set[slug] = struct{}{}
			set[strings.ToLower(slug)] = struct{}{}
		}
	}
	return set
}

// MatchSetContains reports membership of any common form of chain in set.
func MatchSetContains(set map[string]struct{}, chain string) bool {
	if chain == "" {
		return false
	}
	for _, key := range []string{chain, strings.ToLower(chain), DisplayName(chain), strings.ToLower(DisplayName(chain)), DimensionsSlug(chain)} {
		if _, ok := set[key]; ok {
			return true
		}
	}
	return false
}
