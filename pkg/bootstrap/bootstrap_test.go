package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func skillPathWithText(t *testing.T, text string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "skills")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "SKILL.md")
	if text != "" {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestAcceptsAllBootstrapAliases(t *testing.T) {
	path := skillPathWithText(t, "# skill")
	for _, alias := range ToolAliases {
		b := New(path)
		res, err := b.Bootstrap(alias, true, true)
		if err != nil {
			t.Fatalf("alias %q: %v", alias, err)
		}
		if res.CanonicalTrigger != CanonicalTrigger {
			t.Errorf("alias %q: expected canonical trigger %q, got %q", alias, CanonicalTrigger, res.CanonicalTrigger)
		}
	}
}

func TestInvalidTriggerReturnsTypedError(t *testing.T) {
	path := skillPathWithText(t, "# skill")
	b := New(path)

	res, err := b.Bootstrap("unknown", false, false)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if res.OK {
		t.Error("expected ok=false for an unrecognized trigger")
	}
	if res.Error != "invalid_trigger" {
		t.Errorf("expected invalid_trigger, got %q", res.Error)
	}
	if len(res.Allowed) != len(ToolAliases) {
		t.Errorf("expected allowed list to echo ToolAliases, got %v", res.Allowed)
	}
}

func TestIdempotentBehaviorIsPreserved(t *testing.T) {
	path := skillPathWithText(t, "# skill")
	b := New(path)

	first, err := b.Bootstrap("flashgrep-init", false, true)
	if err != nil {
		t.Fatalf("first Bootstrap: %v", err)
	}
	if first.Status != "injected" {
		t.Fatalf("expected first call to inject, got %+v", first)
	}

	second, err := b.Bootstrap("flashgrep-init", false, true)
	if err != nil {
		t.Fatalf("second Bootstrap: %v", err)
	}
	if second.Status != "already_injected" {
		t.Errorf("expected already_injected, got %q", second.Status)
	}
	if second.SkillMarkdown != "" {
		t.Error("expected already_injected response to omit the skill body")
	}

	forced, err := b.Bootstrap("flashgrep-init", true, true)
	if err != nil {
		t.Fatalf("forced Bootstrap: %v", err)
	}
	if forced.Status != "injected" {
		t.Errorf("expected force=true to re-inject, got %q", forced.Status)
	}
}

func TestMissingOrUnreadableSkillIsTypedError(t *testing.T) {
	missingPath := skillPathWithText(t, "")
	bMissing := New(missingPath)
	missing, err := bMissing.Bootstrap("flashgrep-init", false, true)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if missing.Error != "skill_not_found" {
		t.Errorf("expected skill_not_found, got %q", missing.Error)
	}

	root := t.TempDir()
	skillDir := filepath.Join(root, "skills")
	if err := os.MkdirAll(filepath.Join(skillDir, "SKILL.md"), 0o755); err != nil {
		t.Fatal(err)
	}
	bUnreadable := New(filepath.Join(skillDir, "SKILL.md"))
	unreadable, err := bUnreadable.Bootstrap("flashgrep-init", false, true)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if unreadable.Error != "skill_unreadable" {
		t.Errorf("expected skill_unreadable, got %q", unreadable.Error)
	}
}

func TestCompactOmitsSkillBody(t *testing.T) {
	path := skillPathWithText(t, "# skill body")
	b := New(path)

	compact, err := b.Bootstrap("bootstrap_skill", false, true)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if compact.SkillMarkdown != "" || compact.SkillOverview != "" {
		t.Error("expected compact mode to omit skill_markdown and skill_overview")
	}

	full, err := New(path).Bootstrap("bootstrap_skill", false, false)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if full.SkillMarkdown != "# skill body" {
		t.Errorf("expected full skill body, got %q", full.SkillMarkdown)
	}
}
