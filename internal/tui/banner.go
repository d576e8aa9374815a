package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for interactive sessions.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Ocean gradient, cyan down to lime.
	s1 := termenv.String("      _           _    _                     _ ").Foreground(p.Color("#22d3ee"))
	s2 := termenv.String("   __| | ___  ___| | _| |__   __ _ _ __   __| |").Foreground(p.Color("#2dd4bf"))
	s3 := termenv.String("  / _` |/ _ \\/ __| |/ / '_ \\ / _` | '_ \\ / _` |").Foreground(p.Color("#34d399"))
	s4 := termenv.String(" | (_| |  __/ (__|   <| | | | (_| | | | | (_| |").Foreground(p.Color("#4ade80"))
	s5 := termenv.String("  \\__,_|\\___|\\___|_|\\_\\_| |_|\\__,_|_| |_|\\__,_|").Foreground(p.Color("#a3e635"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
	fmt.Println(termenv.String(fmt.Sprintf("  deckhand %s", strings.TrimSpace(version))).Faint())
	fmt.Println()
}
