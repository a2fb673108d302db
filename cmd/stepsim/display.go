package main

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"
)

// ── Startup display helpers ────────────────────────────────────────

// displayWidth counts terminal columns; wide and fullwidth runes take two.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			w += 2
		default:
			w++
		}
	}
	return w
}

func printBanner(out io.Writer, worldName string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Fprintf(out, "\033[36;1m  │\033[0m              stepsim  %-8s            \033[36;1m│\033[0m\n", version)
	fmt.Fprintln(out, "\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  \033[1mworld:\033[0m %s\n\n", worldName)
}

func printSection(out io.Writer, title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Fprintf(out, "  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(out io.Writer, label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Fprintf(out, "  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(out io.Writer, msg string) {
	fmt.Fprintf(out, "  \033[32m✓\033[0m %s\n", msg)
}

func printReady(out io.Writer, msg string) {
	fmt.Fprintf(out, "  \033[32m▶\033[0m %s\n", msg)
}
