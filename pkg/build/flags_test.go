package build

import "testing"

func TestInitializeMissingFlags(t *testing.T) {
	// Without ldflags every variable is empty, so Initialize must fail
	// and the defaults must survive untouched.
	if err := Initialize(); err == nil {
		t.Error("Initialize() should fail when build flags are missing")
	}

	flags := GetBuildFlags()
	if flags.Name != "unknown" || flags.Version != "unknown" {
		t.Errorf("defaults clobbered: %+v", flags)
	}
}

func TestInitializePopulated(t *testing.T) {
	buildName = "melscope"
	buildTime = "2026-01-01T00:00:00Z"
	buildCommit = "abc1234"
	buildVersion = "0.1.0"
	defer func() {
		buildName, buildTime, buildCommit, buildVersion = "", "", "", ""
	}()

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	flags := GetBuildFlags()
	if flags.Name != "melscope" {
		t.Errorf("Name = %q, expected melscope", flags.Name)
	}
	if flags.Version != "0.1.0" {
		t.Errorf("Version = %q, expected 0.1.0", flags.Version)
	}
}
