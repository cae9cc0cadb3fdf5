// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - Command suggestion for typo correction.
package cli

import (
	"slices"
	"strings"
)

// validCommands lists every command word ParseArgs accepts, aliases included.
var validCommands = []string{
	"tui", "ui",
	"chat", "repl",
	"ask", "a",
	"models", "ls",
	"eject", "unload",
	"config", "cfg",
	"version",
	"help",
}

// isKnownCommand reports whether word is a command or alias.
func isKnownCommand(word string) bool {
	return slices.Contains(validCommands, strings.ToLower(word))
}

// SuggestCommand returns the closest command to input, or "" when nothing
// is near enough to be a likely typo.
func SuggestCommand(input string) string {
	return suggestFrom(strings.ToLower(input), validCommands)
}

// SuggestSlashCommand does the same for REPL slash commands. Both input
// and the result carry the leading slash.
func SuggestSlashCommand(input string) string {
	names := make([]string, 0, len(slashCommands))
	for _, c := range slashCommands {
		names = append(names, c.name)
	}
	return suggestFrom(strings.ToLower(input), names)
}

func suggestFrom(input string, candidates []string) string {
	// Very short inputs are likely intentional.
	if len([]rune(strings.TrimPrefix(input, "/"))) < 2 {
		return ""
	}

	// One edit for short words, two for medium, three beyond that.
	maxDistance := 1
	if len(input) >= 4 {
		maxDistance = 2
	}
	if len(input) > 8 {
		maxDistance = 3
	}

	best, bestDistance := "", maxDistance+1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d == 0 {
			return ""
		}
		if d < bestDistance {
			best, bestDistance = c, d
		}
	}
	return best
}

// levenshteinDistance is the minimum number of single-rune insertions,
// deletions or substitutions turning a into b.
func levenshteinDistance(a, b string) int {
	s, t := []rune(a), []rune(b)
	if len(s) == 0 {
		return len(t)
	}
	if len(t) == 0 {
		return len(s)
	}

	prev := make([]int, len(t)+1)
	curr := make([]int, len(t)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(s); i++ {
		curr[0] = i
		for j := 1; j <= len(t); j++ {
			cost := 1
			if s[i-1] == t[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(t)]
}
