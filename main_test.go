package main

import (
	"slices"
	"testing"
)

func TestSplitList(t *testing.T) {
	tests := map[string][]string{
		"":                     nil,
		" , ":                  nil,
		"http://a":             {"http://a"},
		"http://a, http://b ,": {"http://a", "http://b"},
	}
	for in, want := range tests {
		if got := splitList(in); !slices.Equal(got, want) {
			t.Errorf("splitList(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfiguredNATSURL(t *testing.T) {
	tests := []struct {
		opts Options
		want string
	}{
		{Options{}, ""},
		{Options{NATSURL: "nats://bus:4222"}, "nats://bus:4222"},
		{Options{NATSEmbedded: true, NATSPort: 4333}, "nats://127.0.0.1:4333"},
		{Options{NATSURL: "nats://bus:4222", NATSEmbedded: true, NATSPort: 4333}, "nats://bus:4222"},
	}
	for _, tt := range tests {
		if got := configuredNATSURL(tt.opts); got != tt.want {
			t.Errorf("configuredNATSURL(%+v) = %q, want %q", tt.opts, got, tt.want)
		}
	}
}
