package config

import (
	"testing"
	"time"

	"sanders/internal/coterie"
	"sanders/internal/mutex"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "n1=127.0.0.1:50051",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
			},
		},
		{
			name:  "multiple peers",
			input: "n1=127.0.0.1:50051,n2=127.0.0.1:50052,n3=127.0.0.1:50053",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
				{ID: "n2", Addr: "127.0.0.1:50052"},
				{ID: "n3", Addr: "127.0.0.1:50053"},
			},
		},
		{
			name:  "with spaces",
			input: "n1 = 127.0.0.1:50051 , n2 = 127.0.0.1:50052",
			want: []Peer{
				{ID: "n1", Addr: "127.0.0.1:50051"},
				{ID: "n2", Addr: "127.0.0.1:50052"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "n1:127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:50051",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "n1=",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParsePeers() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if len(got) != len(tt.want) {
					t.Errorf("ParsePeers() length = %d, want %d", len(got), len(tt.want))
					return
				}
				for i := range got {
					if got[i].ID != tt.want[i].ID || got[i].Addr != tt.want[i].Addr {
						t.Errorf("ParsePeers()[%d] = %v, want %v", i, got[i], tt.want[i])
					}
				}
			}
		})
	}
}

func TestConfig_Members(t *testing.T) {
	cfg := &Config{
		NodeID:     "n1",
		ListenAddr: "127.0.0.1:50051",
		Peers: []Peer{
			{ID: "n2", Addr: "127.0.0.1:50052"},
			{ID: "n1", Addr: "127.0.0.1:50051"},
			{ID: "n3", Addr: "127.0.0.1:50053"},
		},
	}

	members := cfg.Members()
	if len(members) != 3 {
		t.Errorf("Expected 3 members, got %d", len(members))
	}

	// Check that self is included
	foundSelf := false
	for _, m := range members {
		if m.ID == "n1" && m.Addr == "127.0.0.1:50051" {
			foundSelf = true
		}
	}
	if !foundSelf {
		t.Error("Self node not found in members")
	}

	ids := cfg.MemberIDs()
	if len(ids) != 3 || ids[0] != "n1" {
		t.Errorf("MemberIDs() = %v", ids)
	}

	addr, ok := cfg.AddrOf("n3")
	if !ok || addr != "127.0.0.1:50053" {
		t.Errorf("AddrOf(n3) = %q, %v", addr, ok)
	}
	if _, ok := cfg.AddrOf("n9"); ok {
		t.Error("AddrOf(n9) should not be found")
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{NodeID: "n1", ListenAddr: ":0"}.WithDefaults()

	if cfg.Coterie != coterie.KindFull {
		t.Errorf("Coterie = %q, want full", cfg.Coterie)
	}
	if cfg.SessionDuration != mutex.DefaultSessionDuration {
		t.Errorf("SessionDuration = %v", cfg.SessionDuration)
	}
	if cfg.RoundInterval != DefaultRoundInterval {
		t.Errorf("RoundInterval = %v", cfg.RoundInterval)
	}
	if cfg.SendTimeout != DefaultSendTimeout {
		t.Errorf("SendTimeout = %v", cfg.SendTimeout)
	}

	custom := Config{RoundInterval: time.Second}.WithDefaults()
	if custom.RoundInterval != time.Second {
		t.Errorf("WithDefaults should keep explicit values, got %v", custom.RoundInterval)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{NodeID: "n1", ListenAddr: ":1", RequestProbability: 0.5}, false},
		{"missing id", Config{ListenAddr: ":1"}, true},
		{"missing listen", Config{NodeID: "n1"}, true},
		{"probability too high", Config{NodeID: "n1", ListenAddr: ":1", RequestProbability: 1.5}, true},
		{"negative probability", Config{NodeID: "n1", ListenAddr: ":1", RequestProbability: -0.1}, true},
		{
			"conflicting peer addresses",
			Config{NodeID: "n1", ListenAddr: ":1", Peers: []Peer{{ID: "n2", Addr: ":2"}, {ID: "n2", Addr: ":3"}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
