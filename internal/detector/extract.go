package detector

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/autofilter/autofilter/internal/chain"
	"github.com/autofilter/autofilter/internal/settings"
)

// MaxEmitPerScan caps the open requests a single scan may send.
const MaxEmitPerScan = 50

const minTokenIDLen = 20

var excludedPaths = []string{
	"moonit", "new-pairs", "top-gainers", "top-losers", "watchlist", "portfolio", "multicharts",
}

var (
	tokenPathRe = regexp.MustCompile(`/token/([A-Za-z0-9]+)`)
	longIDRe    = regexp.MustCompile(`[A-Za-z0-9]{30,}`)
	gmgnParamRe = regexp.MustCompile(`[?&]chain=([a-z]+)`)
	percentRe   = regexp.MustCompile(`([+-]?\d+(?:\.\d+)?)\s?%`)
)

// Per-chain patterns are compiled once; chain names are plain identifiers.
var (
	dexChainRe  = compileChainPatterns(chain.DexScreenerChains, `/%s[?/]`)
	dexTokenRe  = compileChainPatterns(chain.DexScreenerChains, `/%s/([A-Za-z0-9]+)`)
	gmgnTokenRe = compileChainPatterns(chain.GMGNChains, `/%s/token/([A-Za-z0-9]+)`)
)

func compileChainPatterns(ids []string, format string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(ids))
	for _, id := range ids {
		out[id] = regexp.MustCompile(strings.Replace(format, "%s", regexp.QuoteMeta(id), 1))
	}
	return out
}

// Candidate is a token link found on a listing page.
type Candidate struct {
	Chain   chain.Chain
	TokenID string
	Href    string
	// Changes holds the 1m/5m/1h price changes of the token's row, when the
	// row shows them.
	Changes settings.Changes
}

// DetectPage resolves the chain a listing page shows. ok is false for pages
// the detector must not scan: unknown sites, DexScreener pages outside a
// supported chain, and GMGN pages that are not filter listings.
func DetectPage(pageURL string) (chain.Chain, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return chain.Chain{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "dexscreener.com":
		if id, ok := detectDexScreenerChain(pageURL); ok {
			return chain.Chain{Site: chain.DexScreener, ID: id}, true
		}
	case "gmgn.ai":
		if !isGMGNFilterPage(pageURL) {
			return chain.Chain{}, false
		}
		if id, ok := detectGMGNChain(pageURL); ok {
			return chain.Chain{Site: chain.GMGN, ID: id}, true
		}
	}
	return chain.Chain{}, false
}

func detectDexScreenerChain(pageURL string) (string, bool) {
	for _, id := range chain.DexScreenerChains {
		if strings.Contains(pageURL, "/new-pairs/"+id) ||
			strings.Contains(pageURL, "/"+id+"/") ||
			dexChainRe[id].MatchString(pageURL) {
			return id, true
		}
	}
	return "", false
}

func detectGMGNChain(pageURL string) (string, bool) {
	if m := gmgnParamRe.FindStringSubmatch(pageURL); m != nil {
		for _, id := range chain.GMGNChains {
			if m[1] == id {
				return id, true
			}
		}
	}
	for _, id := range chain.GMGNChains {
		if strings.Contains(pageURL, "/"+id+"/") {
			return id, true
		}
	}
	return "", false
}

func isGMGNFilterPage(pageURL string) bool {
	return (strings.Contains(pageURL, "chain=sol") || strings.Contains(pageURL, "chain=bsc")) &&
		!strings.Contains(pageURL, "/token/")
}

// TokenFromHref extracts a token id from a link on a page of chain ch.
func TokenFromHref(ch chain.Chain, href string) (string, bool) {
	if href == "" {
		return "", false
	}
	switch ch.Site {
	case chain.GMGN:
		re, ok := gmgnTokenRe[ch.ID]
		if !ok {
			return "", false
		}
		if m := re.FindStringSubmatch(href); m != nil && len(m[1]) >= minTokenIDLen {
			return m[1], true
		}
		return "", false
	case chain.DexScreener:
		return dexScreenerToken(ch.ID, href)
	}
	return "", false
}

func dexScreenerToken(chainID, href string) (string, bool) {
	if re, ok := dexTokenRe[chainID]; ok {
		if m := re.FindStringSubmatch(href); m != nil && len(m[1]) >= minTokenIDLen && !hasExcludedPath(href) {
			return m[1], true
		}
	}
	if m := tokenPathRe.FindStringSubmatch(href); m != nil && len(m[1]) >= minTokenIDLen {
		return m[1], true
	}
	if strings.Contains(href, "/new-pairs") {
		return "", false
	}
	if m := longIDRe.FindString(href); m != "" {
		return m, true
	}
	return "", false
}

func hasExcludedPath(href string) bool {
	lower := strings.ToLower(href)
	for _, p := range excludedPaths {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Extract walks every link of doc and returns one candidate per token in
// document order. Ids that cannot be addresses on ch are dropped.
func Extract(ch chain.Chain, doc *goquery.Document) []Candidate {
	seen := make(map[string]bool)
	var out []Candidate

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		id, ok := TokenFromHref(ch, href)
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		if !ch.PlausibleAddress(id) {
			return
		}
		c := Candidate{Chain: ch, TokenID: id, Href: href}
		if ch.Site == chain.GMGN {
			c.Changes = rowChanges(s)
		}
		out = append(out, c)
	})
	return out
}

// rowChanges reads the first three percentages of the listing row holding
// the link as the 1m, 5m and 1h changes. Rows with fewer leave the metrics
// unset.
func rowChanges(link *goquery.Selection) settings.Changes {
	row := link.Closest(`tr, [role="row"], [data-index]`)
	if row.Length() == 0 {
		return settings.Changes{}
	}
	m := percentRe.FindAllStringSubmatch(row.Text(), 3)
	if len(m) < 3 {
		return settings.Changes{}
	}
	vals := make([]*float64, 3)
	for i, sub := range m {
		f, err := strconv.ParseFloat(sub[1], 64)
		if err != nil {
			return settings.Changes{}
		}
		vals[i] = settings.Float(f)
	}
	return settings.Changes{OneMin: vals[0], FiveMin: vals[1], OneHour: vals[2]}
}
