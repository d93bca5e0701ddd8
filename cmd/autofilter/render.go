package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/autofilter/autofilter/internal/favorites"
	"github.com/autofilter/autofilter/internal/presenter"
)

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	detail lipgloss.Style
	off    lipgloss.Style
	empty  lipgloss.Style
	bands  map[presenter.Band]lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:  lipgloss.NewStyle().Bold(true),
		header: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		detail: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		off:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:  lipgloss.NewStyle().Faint(true),
		bands: map[presenter.Band]lipgloss.Style{
			presenter.BandFresh:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
			presenter.BandRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			presenter.BandHalf:    lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
			presenter.BandEnding:  lipgloss.NewStyle().Foreground(lipgloss.Color("114")),
		},
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func renderStatus(r statusReport) string {
	st := newStyles()
	var lines []string

	state := "active"
	if !r.Enabled {
		state = st.off.Render("disabled")
	}
	lines = append(lines,
		st.title.Render("autofilter")+" "+state,
		st.detail.Render(fmt.Sprintf("tabs %d/%d  in-flight %d  cooldown %dm  sound %s",
			r.TabCount, r.MaxTabs, r.InFlight, r.CooldownMinutes, onOff(r.SoundEnabled))),
		"",
	)

	if len(r.Cooldowns) == 0 {
		lines = append(lines, st.empty.Render("no tokens in cooldown"))
		return strings.Join(lines, "\n")
	}

	lines = append(lines, st.header.Render(fmt.Sprintf("%-16s %-24s %s", "TOKEN", "CHAIN", "REMAINING")))
	for _, row := range r.Cooldowns {
		remaining := fmt.Sprintf("%8s", row.Remaining)
		if s, ok := st.bands[row.Band]; ok {
			remaining = s.Render(remaining)
		}
		lines = append(lines, fmt.Sprintf("%-16s %-24s %s", presenter.ShortID(row.TokenID), row.Chain, remaining))
	}
	return strings.Join(lines, "\n")
}

func renderFavorites(userID string, recs []favorites.Record) string {
	st := newStyles()
	lines := []string{st.title.Render("favorites") + " " + st.header.Render(userID), ""}
	if len(recs) == 0 {
		lines = append(lines, st.empty.Render("no saved filters"))
		return strings.Join(lines, "\n")
	}
	lines = append(lines, st.header.Render(fmt.Sprintf("%-36s %-16s %s", "ID", "SAVED", "FILTER")))
	for _, r := range recs {
		lines = append(lines, fmt.Sprintf("%-36s %-16s %s",
			r.ID.String(), r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Filter))
	}
	return strings.Join(lines, "\n")
}
