package sandbox

import "testing"

func TestProfileForMatchesKnownExtension(t *testing.T) {
	d := &DockerTypeChecker{profiles: defaultProfiles}
	profile, ok := d.profileFor([]string{"main.go"})
	if !ok {
		t.Fatal("expected a profile for .go")
	}
	if profile.Image != "golang:1.22" {
		t.Errorf("image = %q, want golang:1.22", profile.Image)
	}
}

func TestProfileForUnknownExtensionIsNotFound(t *testing.T) {
	d := &DockerTypeChecker{profiles: defaultProfiles}
	if _, ok := d.profileFor([]string{"README.md"}); ok {
		t.Fatal("expected no profile for .md")
	}
}

func TestWithProfileOverridesDefault(t *testing.T) {
	d := &DockerTypeChecker{profiles: map[string]LanguageProfile{}}
	for ext, p := range defaultProfiles {
		d.profiles[ext] = p
	}
	d.WithProfile(".go", LanguageProfile{Image: "golang:1.23", Command: []string{"go", "vet", "./..."}, Workdir: "/workspace"})

	profile, ok := d.profileFor([]string{"main.go"})
	if !ok || profile.Image != "golang:1.23" {
		t.Fatalf("expected overridden profile, got %+v ok=%v", profile, ok)
	}
}

func TestRandomSuffixIsUniqueAcrossCalls(t *testing.T) {
	a := randomSuffix()
	b := randomSuffix()
	if a == b {
		t.Fatal("expected distinct suffixes")
	}
}
