// Package filterurl builds DexScreener listing URLs from filter values.
package filterurl

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const DefaultBaseURL = "https://dexscreener.com/new-pairs"

// Filters maps DexScreener query parameter names to values.
type Filters map[string]string

// Params is every parameter the builder emits, in URL order.
var Params = buildParams()

func buildParams() []string {
	p := []string{
		"minLiq", "maxLiq", "maxAge", "minAge",
		"minMarketCap", "maxMarketCap",
		"minFdv", "maxFdv",
	}
	for _, window := range []string{"24H", "6H", "1H", "5M"} {
		for _, metric := range []string{"Txns", "Buys", "Sells", "Vol", "Chg"} {
			p = append(p, "min"+window+metric, "max"+window+metric)
		}
	}
	return append(p, "label", "suffixes", "rankBy", "order")
}

var templates = map[string]Filters{
	"highLiquidity": {"minLiq": "100000", "order": "desc"},
	"bigMovers24h": {
		"minLiq": "50000", "min24HVol": "100000", "min24HChg": "20", "max24HChg": "100", "order": "desc",
	},
	"trending6h": {
		"minLiq": "25000", "min6HVol": "25000", "min6HChg": "10", "rankBy": "trendingScoreH6", "order": "desc",
	},
	"veryNew": {"maxAge": "6", "minLiq": "50000", "min24HVol": "50000", "order": "desc"},
	"steadyRiser": {
		"minLiq": "50000", "min24HVol": "100000", "min24HChg": "5", "max24HChg": "30", "min24HBuys": "100", "order": "desc",
	},
}

// Template returns a copy of a named preset.
func Template(name string) (Filters, bool) {
	t, ok := templates[name]
	if !ok {
		return nil, false
	}
	out := make(Filters, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out, true
}

func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for n := range templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Merge overlays o onto f and returns f.
func (f Filters) Merge(o Filters) Filters {
	if f == nil {
		f = make(Filters, len(o))
	}
	for k, v := range o {
		f[k] = v
	}
	return f
}

// FromValues converts decoded JSON values. Numbers lose no precision for
// the integer and decimal thresholds DexScreener accepts.
func FromValues(m map[string]any) (Filters, error) {
	out := make(Filters, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case nil:
		case string:
			out[k] = x
		case float64:
			out[k] = strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			if x {
				out[k] = "true"
			}
		default:
			return nil, fmt.Errorf("filter %q: unsupported value %v", k, v)
		}
	}
	return out, nil
}

// Build renders the filters onto baseURL. Empty and zero values are
// omitted, as are names DexScreener does not know.
func Build(f Filters, baseURL string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	var parts []string
	for _, name := range Params {
		v := strings.TrimSpace(f[name])
		if v == "" || v == "0" {
			continue
		}
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(v))
	}
	return baseURL + "?" + strings.Join(parts, "&")
}
