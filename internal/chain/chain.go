// Package chain maps listing-site chain names to canonical token URLs.
package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
)

type Site string

const (
	DexScreener Site = "dexscreener"
	GMGN        Site = "gmgn"
)

// Chain is a chain name qualified by the site whose URL scheme it uses.
// "bsc" exists on both sites, so the site is part of the identity.
type Chain struct {
	Site Site
	ID   string
}

// DexScreenerChains is the detection order used on DexScreener pages.
var DexScreenerChains = []string{
	"solana", "bsc", "base", "ethereum", "pulsechain", "polygon", "ton",
	"hyperliquid", "sui", "avalanche", "worldchain", "abstract", "xrpl",
	"arbitrum", "hyperevm", "near", "sonic",
}

// GMGNChains is the set of chains GMGN filter pages expose.
var GMGNChains = []string{"sol", "bsc"}

var evmChains = map[string]bool{
	"ethereum": true, "base": true, "bsc": true, "polygon": true, "arbitrum": true,
	"avalanche": true, "pulsechain": true, "worldchain": true, "abstract": true,
	"hyperevm": true, "sonic": true,
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Parse accepts "site:chain" or a bare chain name. Bare "sol" resolves to
// GMGN; bare DexScreener names (including "bsc") resolve to DexScreener.
func Parse(s string) (Chain, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Chain{}, fmt.Errorf("empty chain")
	}
	if site, id, ok := strings.Cut(s, ":"); ok {
		return New(Site(site), id)
	}
	if contains(DexScreenerChains, s) {
		return Chain{Site: DexScreener, ID: s}, nil
	}
	if contains(GMGNChains, s) {
		return Chain{Site: GMGN, ID: s}, nil
	}
	return Chain{}, fmt.Errorf("unsupported chain %q", s)
}

// New validates a chain against its site's supported list.
func New(site Site, id string) (Chain, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	switch site {
	case DexScreener:
		if contains(DexScreenerChains, id) {
			return Chain{Site: site, ID: id}, nil
		}
	case GMGN:
		if contains(GMGNChains, id) {
			return Chain{Site: site, ID: id}, nil
		}
	default:
		return Chain{}, fmt.Errorf("unsupported site %q", site)
	}
	return Chain{}, fmt.Errorf("unsupported chain %q for %s", id, site)
}

func (c Chain) String() string {
	return string(c.Site) + ":" + c.ID
}

func (c Chain) IsZero() bool { return c.Site == "" && c.ID == "" }

// TokenURL is the exact string used both to create a token tab and to match
// an already open one.
func (c Chain) TokenURL(tokenID string) string {
	if c.Site == GMGN {
		return "https://gmgn.ai/" + c.ID + "/token/" + tokenID
	}
	return "https://dexscreener.com/" + c.ID + "/" + tokenID
}

func (c Chain) isSolana() bool {
	return c.ID == "sol" || c.ID == "solana"
}

// PlausibleAddress rejects ids that cannot be token addresses on the chain.
// Solana ids must decode to a 32 byte key; 0x-prefixed ids must be valid hex
// addresses. Pair ids and other chains' formats are accepted as-is.
func (c Chain) PlausibleAddress(id string) bool {
	if id == "" {
		return false
	}
	if c.isSolana() {
		b, err := base58.Decode(id)
		return err == nil && len(b) == 32
	}
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		if evmChains[c.ID] && len(id) == 42 {
			return common.IsHexAddress(id)
		}
		return isHex(id[2:])
	}
	return true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
