package version

import (
	"runtime/debug"
	"testing"
	"time"
)

func TestOverrideWins(t *testing.T) {
	info := fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Path: "example.test/mod", Version: "v0.1.0"}}, "v1.2.3")
	if info.Version != "v1.2.3" {
		t.Fatalf("expected build version, got %q", info.Version)
	}
	if info.Module != "example.test/mod" {
		t.Fatalf("expected module from build info, got %q", info.Module)
	}
	if info.String() != "example.test/mod v1.2.3" {
		t.Fatalf("unexpected string %q", info.String())
	}
}

func TestPseudoVersionFromVCS(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := fromBuildInfo(&debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
			{Key: "vcs.modified", Value: "true"},
		},
	}, "")
	if info.Version != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected version %q", info.Version)
	}
	if !info.Dirty {
		t.Fatalf("expected dirty flag")
	}
	if info.Module != defaultModule {
		t.Fatalf("expected default module, got %q", info.Module)
	}
}

func TestUnknownWithoutBuildInfo(t *testing.T) {
	info := fromBuildInfo(nil, "")
	if info.Version != "v0.0.0-unknown" {
		t.Fatalf("expected unknown version, got %q", info.Version)
	}
}
