package core

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"/power check", []string{"/power", "check"}},
		{`/cmd a "b c" d`, []string{"/cmd", "a", "b c", "d"}},
		{`/cmd 'single quoted'`, []string{"/cmd", "single quoted"}},
		{`/cmd a\ b`, []string{"/cmd", "a b"}},
		{`/cmd "escaped \" quote"`, []string{"/cmd", `escaped " quote`}},
		{"/cmd\ta\nb", []string{"/cmd", "a", "b"}},
		{`/cmd --k=v -x`, []string{"/cmd", "--k=v", "-x"}},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenizeCommandLine(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	cases := []struct {
		name      string
		in        []string
		wantPos   []string
		wantFlags map[string]string
		wantBools map[string]bool
	}{
		{
			"positionals only",
			[]string{"a", "b"},
			[]string{"a", "b"}, map[string]string{}, map[string]bool{},
		},
		{
			"long flag with equals",
			[]string{"--key=value"},
			nil, map[string]string{"key": "value"}, map[string]bool{},
		},
		{
			"long flag with separate value",
			[]string{"--key", "value"},
			nil, map[string]string{"key": "value"}, map[string]bool{},
		},
		{
			"long bool flag",
			[]string{"--verbose"},
			nil, map[string]string{}, map[string]bool{"verbose": true},
		},
		{
			"long flag followed by another flag stays bool",
			[]string{"--verbose", "--key=value"},
			nil, map[string]string{"key": "value"}, map[string]bool{"verbose": true},
		},
		{
			"short flag with value",
			[]string{"-k", "value"},
			nil, map[string]string{"k": "value"}, map[string]bool{},
		},
		{
			"short flag with equals",
			[]string{"-k=value"},
			nil, map[string]string{"k": "value"}, map[string]bool{},
		},
		{
			"grouped short bools",
			[]string{"-abc"},
			nil, map[string]string{}, map[string]bool{"a": true, "b": true, "c": true},
		},
		{
			"mixed",
			[]string{"pos1", "--key=v", "-x", "pos2"},
			[]string{"pos1"}, map[string]string{"key": "v", "x": "pos2"}, map[string]bool{},
		},
		{
			"bare dash is positional",
			[]string{"-"},
			[]string{"-"}, map[string]string{}, map[string]bool{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pos, flags, bools := parseFlags(tc.in)
			if !reflect.DeepEqual(pos, tc.wantPos) {
				t.Fatalf("pos = %#v, want %#v", pos, tc.wantPos)
			}
			if !reflect.DeepEqual(flags, tc.wantFlags) {
				t.Fatalf("flags = %#v, want %#v", flags, tc.wantFlags)
			}
			if !reflect.DeepEqual(bools, tc.wantBools) {
				t.Fatalf("bools = %#v, want %#v", bools, tc.wantBools)
			}
		})
	}
}
