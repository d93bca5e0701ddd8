// Package presenter turns coordinator state into countdowns for the page
// overlay and the CLI.
package presenter

import (
	"fmt"
	"sort"
	"time"

	"github.com/autofilter/autofilter/internal/coordinator"
)

type Band string

const (
	BandFresh   Band = "fresh"
	BandRunning Band = "running"
	BandHalf    Band = "half"
	BandEnding  Band = "ending"
)

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatCompact drops the hour field when it is zero.
func FormatCompact(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds >= 3600 {
		return FormatClock(seconds)
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// BandFor classifies the remaining share of a cooldown.
func BandFor(remaining, total time.Duration) Band {
	if total <= 0 {
		return BandEnding
	}
	p := float64(remaining) / float64(total)
	switch {
	case p > 0.75:
		return BandFresh
	case p > 0.5:
		return BandRunning
	case p > 0.25:
		return BandHalf
	default:
		return BandEnding
	}
}

// ShortID abbreviates long token ids as first6...last4.
func ShortID(id string) string {
	if len(id) <= 13 {
		return id
	}
	return id[:6] + "..." + id[len(id)-4:]
}

type Cooldown struct {
	TokenID   string        `json:"tokenId" yaml:"tokenId"`
	Short     string        `json:"short" yaml:"short"`
	Chain     string        `json:"chain" yaml:"chain"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
	Remaining time.Duration `json:"remaining" yaml:"remaining"`
	Total     time.Duration `json:"total" yaml:"total"`
	Band      Band          `json:"band" yaml:"band"`
}

func (c Cooldown) Clock() string   { return FormatClock(int64(c.Remaining / time.Second)) }
func (c Cooldown) Compact() string { return FormatCompact(int64(c.Remaining / time.Second)) }

// ActiveCooldowns keeps tokens still inside their window, shortest remaining
// first.
func ActiveCooldowns(tokens []coordinator.OpenedToken, now time.Time) []Cooldown {
	nowMs := now.UnixMilli()
	out := make([]Cooldown, 0, len(tokens))
	for _, t := range tokens {
		if t.Timestamp == 0 || t.CooldownMs == 0 {
			continue
		}
		elapsed := nowMs - t.Timestamp
		remaining := t.CooldownMs - elapsed
		if remaining <= 0 {
			continue
		}
		total := time.Duration(t.CooldownMs) * time.Millisecond
		rem := time.Duration(remaining) * time.Millisecond
		out = append(out, Cooldown{
			TokenID:   t.TokenID,
			Short:     ShortID(t.TokenID),
			Chain:     t.Chain,
			Elapsed:   time.Duration(elapsed) * time.Millisecond,
			Remaining: rem,
			Total:     total,
			Band:      BandFor(rem, total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Remaining < out[j].Remaining })
	return out
}
