// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"stop", "stop", 0},
		{"stpo", "stop", 2},
		{"reload", "relaod", 2},
		{"status", "start", 3},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestSuggestCommand(t *testing.T) {
	commands := []*Command{
		{Name: "start"},
		{Name: "stop"},
		{Name: "restart"},
		{Name: "master", Hidden: true},
	}
	tests := []struct {
		unknown string
		want    string
	}{
		{"strat", "start"},
		{"stpo", "stop"},
		{"restrat", "restart"},
		{"mastr", ""},
		{"inventory", ""},
	}
	for _, test := range tests {
		if got := suggestCommand(test.unknown, commands); got != test.want {
			t.Errorf("suggestCommand(%q) = %q, want %q", test.unknown, got, test.want)
		}
	}
}

func TestSuggestFlag(t *testing.T) {
	flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
	flagSet.Bool("foreground", false, "")
	flagSet.StringP("config", "c", "", "")

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--foregrond"}, "--foreground"},
		{[]string{"--confg=x.yaml"}, "--config"},
		{[]string{"-c", "x", "--foregruond"}, "--foreground"},
		{[]string{"--zzzzzzzzzz"}, ""},
		{[]string{"positional"}, ""},
	}
	for _, test := range tests {
		if got := suggestFlag(test.args, flagSet); got != test.want {
			t.Errorf("suggestFlag(%v) = %q, want %q", test.args, got, test.want)
		}
	}
}
