package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/datex/pkg/dxb"
)

func TestLoadManifest(t *testing.T) {
	// Create a temporary directory with a datex.toml
	dir := t.TempDir()
	tomlContent := `
[endpoint]
id = "@alice"
device = 1

[routing]
type = "data"
ttl = 12
prio = 3
max-block-size = 1024
receivers = ["@bob", "@+inst"]

[security]
sign = true

[store]
path = "templates.db"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Endpoint.ID != "@alice" {
		t.Errorf("endpoint id = %q, want @alice", m.Endpoint.ID)
	}
	if m.Routing.TTL != 12 {
		t.Errorf("ttl = %d, want 12", m.Routing.TTL)
	}
	if m.Routing.MaxBlockSize != 1024 {
		t.Errorf("max-block-size = %d, want 1024", m.Routing.MaxBlockSize)
	}
	if len(m.Routing.Receivers) != 2 {
		t.Errorf("receivers count = %d, want 2", len(m.Routing.Receivers))
	}
	if !m.Security.Sign {
		t.Error("security sign = false, want true")
	}
	if got, want := m.StorePath(), filepath.Join(m.Dir, "templates.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	m, err := Parse([]byte("[endpoint]\nid = \"@x\"\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Routing.Type != "request" {
		t.Errorf("default type = %q, want request", m.Routing.Type)
	}
	if m.StorePath() != "" {
		t.Errorf("StorePath() = %q, want empty", m.StorePath())
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"syntax", "[routing\n"},
		{"ttl range", "[routing]\nttl = 300\n"},
		{"block size", "[routing]\nmax-block-size = 10\n"},
		{"device", "[endpoint]\ndevice = 40\n"},
		{"type", "[routing]\ntype = \"gossip\"\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.toml)); err == nil {
			t.Errorf("%s: Parse succeeded, want error", tt.name)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	// Create nested directory structure
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}

	tomlContent := `[endpoint]
id = "@found"
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Endpoint.ID != "@found" {
		t.Errorf("endpoint id = %q, want @found", m.Endpoint.ID)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no datex.toml exists")
	}
}

func TestOptions(t *testing.T) {
	m := &Manifest{
		Endpoint: Endpoint{ID: "@alice", Device: 2},
		Routing: Routing{
			Type:         "data",
			TTL:          9,
			MaxBlockSize: 512,
			Receivers:    []string{"@bob", "@carol"},
		},
		Security: Security{Sign: true},
	}
	opts, err := m.Options()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Type != dxb.ProtocolData {
		t.Errorf("Type = %v, want DATA", opts.Type)
	}
	if opts.TTL != 9 || opts.Device != 2 || !opts.Sign {
		t.Errorf("header = ttl %d device %d sign %v", opts.TTL, opts.Device, opts.Sign)
	}
	if opts.MaxBlockSize != 512 {
		t.Errorf("MaxBlockSize = %d, want 512", opts.MaxBlockSize)
	}
	if opts.Sender == nil || opts.Sender.String() != "@alice" {
		t.Errorf("Sender = %v, want @alice", opts.Sender)
	}
	if opts.Receivers == nil || len(opts.Receivers.Endpoints()) != 2 {
		t.Errorf("Receivers = %v, want @bob | @carol", opts.Receivers)
	}
}

func TestOptionsInvalidEndpoint(t *testing.T) {
	m := &Manifest{Endpoint: Endpoint{ID: "alice"}}
	if _, err := m.Options(); err == nil {
		t.Error("Options succeeded with an invalid endpoint id")
	}
	m = &Manifest{Routing: Routing{Receivers: []string{"bob"}}}
	if _, err := m.Options(); err == nil {
		t.Error("Options succeeded with an invalid receiver")
	}
}
