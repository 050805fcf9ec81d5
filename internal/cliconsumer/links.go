package cliconsumer

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// supportsOSC8 detects whether the current terminal likely understands OSC 8
// hyperlink escape sequences, by environment variable sniffing. Ported from
// terminal_links.py's detect_terminal_osc8_support: iTerm2/WezTerm/Hyper/
// VS Code via TERM_PROGRAM, kitty via KITTY_WINDOW_ID, VTE 0.50+ (GNOME
// Terminal) via VTE_VERSION, Windows Terminal via WT_SESSION, and a TERM
// substring check for kitty/foot. Unknown terminals default to false.
func supportsOSC8() bool {
	switch strings.ToLower(os.Getenv("TERM_PROGRAM")) {
	case "iterm.app", "wezterm", "hyper", "vscode":
		return true
	}
	if os.Getenv("KITTY_WINDOW_ID") != "" {
		return true
	}
	if v := os.Getenv("VTE_VERSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 5000 {
			return true
		}
	}
	if os.Getenv("WT_SESSION") != "" {
		return true
	}
	term := strings.ToLower(os.Getenv("TERM"))
	if strings.Contains(term, "kitty") || strings.Contains(term, "foot") {
		return true
	}
	return false
}

// clickableLink wraps text in an OSC 8 hyperlink escape sequence pointing at
// url, or returns the bare url when the terminal doesn't support OSC 8 (most
// terminals auto-linkify a bare URL anyway).
func clickableLink(url, text string) string {
	if !supportsOSC8() {
		return url
	}
	return fmt.Sprintf("\033]8;;%s\033\\%s\033]8;;\033\\", url, text)
}

// artifactLink renders a clickable file:// link for a completed artifact's
// on-disk path, or returns "" when diskPath is empty.
func artifactLink(outputDir, diskPath string) string {
	if diskPath == "" {
		return ""
	}
	abs := diskPath
	if outputDir != "" {
		abs = outputDir + "/" + diskPath
	}
	return clickableLink("file://"+abs, diskPath)
}
