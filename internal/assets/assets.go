// Package assets holds the scripts the daemon evaluates inside browser tabs.
package assets

import (
	_ "embed"
)

// BeepScript plays the two-tone open sound. It resolves once both tones are
// scheduled.
//
//go:embed notify.js
var BeepScript string

// OverlayScript defines window.__autofilterOverlay(entries), which draws the
// cooldown badges next to token links.
//
//go:embed overlay.js
var OverlayScript string
