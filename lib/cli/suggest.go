// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still suggested.
const maxSuggestDistance = 3

// closest returns the candidate nearest to name within
// maxSuggestDistance. Ties go to the earlier candidate.
func closest(name string, candidates []string) string {
	match, matchDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if d := levenshtein(name, candidate); d < matchDistance {
			match, matchDistance = candidate, d
		}
	}
	return match
}

// suggestCommand returns the visible subcommand closest to unknown.
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		if !command.Hidden {
			names = append(names, command.Name)
		}
	}
	return closest(unknown, names)
}

// suggestFlag looks at the first flag in args that flagSet does not
// define and returns the closest defined long flag, or "".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	unknown := firstUnknownFlag(args, flagSet)
	if unknown == "" {
		return ""
	}
	var names []string
	flagSet.VisitAll(func(f *pflag.Flag) { names = append(names, f.Name) })
	if match := closest(unknown, names); match != "" {
		return "--" + match
	}
	return ""
}

func firstUnknownFlag(args []string, flagSet *pflag.FlagSet) string {
	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		long := strings.HasPrefix(arg, "--")
		if !long && (len(arg) < 2 || arg[0] != '-') {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if long && flagSet.Lookup(name) == nil {
			return name
		}
		if !long && flagSet.ShorthandLookup(name[:1]) == nil {
			return name
		}
	}
	return ""
}

// levenshtein is the edit distance between a and b, computed over two
// rows of the distance matrix.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	row := make([]int, len(b)+1)
	next := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := range len(a) {
		next[0] = i + 1
		for j := range len(b) {
			substitution := row[j]
			if a[i] != b[j] {
				substitution++
			}
			next[j+1] = min(row[j+1]+1, next[j]+1, substitution)
		}
		row, next = next, row
	}
	return row[len(b)]
}
