package main

import (
	"testing"
	"time"

	"github.com/arenahall/lobbyd/internal/config"
)

func TestFormatListenURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":9810", "http://localhost:9810"},
		{"0.0.0.0:80", "http://localhost:80"},
		{"127.0.0.1:7000", "http://127.0.0.1:7000"},
		{"lobby.example", "http://lobby.example"},
	}
	for _, tt := range tests {
		if got := formatListenURL(tt.addr); got != tt.want {
			t.Errorf("formatListenURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestLobbyConfigMapping(t *testing.T) {
	cfg := config.Default()
	cfg.MinimumParticipants = 4
	cfg.RearmOnJoin = true
	cfg.Messages.Started = "Go!"

	lc := lobbyConfig(&cfg)
	if lc.MinimumParticipants != 4 || !lc.RearmOnJoin {
		t.Errorf("unexpected mapping %+v", lc)
	}
	if lc.Countdown.Total != 20 || lc.Countdown.NearFrom != 4 {
		t.Errorf("countdown = %+v", lc.Countdown)
	}
	if err := lc.Countdown.Validate(); err != nil {
		t.Errorf("default countdown invalid: %v", err)
	}
	if lc.StartingDelay != 3*time.Second {
		t.Errorf("StartingDelay = %v", lc.StartingDelay)
	}
	if lc.Messages.Started != "Go!" {
		t.Errorf("Messages.Started = %q", lc.Messages.Started)
	}
}
