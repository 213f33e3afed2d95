// Package bootstrap implements the bootstrap_skill method: injecting
// Flashgrep-first tool-preference guidance into a session exactly once per
// server process, under any of its accepted trigger aliases.
package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// CanonicalTrigger is the trigger name every alias normalizes to.
const CanonicalTrigger = "flashgrep-init"

// ToolAliases lists every method name that triggers a bootstrap
// injection, across every transport. "bootstrap_skill" is the canonical
// method name; the rest are synonyms accepted identically.
var ToolAliases = []string{
	"bootstrap_skill",
	"flashgrep-init",
	"fgrep-boot",
	"flashgrep_init",
	"fgrep_boot",
}

// IsBootstrapTool reports whether name is one of ToolAliases.
func IsBootstrapTool(name string) bool {
	for _, a := range ToolAliases {
		if a == name {
			return true
		}
	}
	return false
}

// ErrRepoRootUnresolved marks an environment where the skill path can't be
// derived — a hard failure, unlike skill_not_found/skill_unreadable which
// are reported as structured ok:false results.
var ErrRepoRootUnresolved = errors.New("bootstrap: unable to resolve skill source path")

// SkillInfo describes the injected skill for clients that want to display
// or version-check it.
type SkillInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      string `json:"author"`
	Repository  string `json:"repository"`
}

// DefaultSkillInfo is the info payload attached to every injected result.
func DefaultSkillInfo() SkillInfo {
	return SkillInfo{
		Name:        "flashgrep",
		Version:     "0.1.0",
		Description: "Local code indexing engine with ranked search, glob, symbol lookup, and budgeted read/write",
		Author:      "Flashgrep Contributors",
		Repository:  "https://github.com/flashgrep/flashgrep",
	}
}

// FallbackRule describes one condition under which generic grep/glob tools
// are permitted instead of the indexed ones.
type FallbackRule struct {
	GateID       string   `json:"gate_id"`
	Condition    string   `json:"condition"`
	AllowedTools []string `json:"allowed_tools"`
	ReasonCode   string   `json:"reason_code"`
}

// ComplianceChecks are the policy's self-reported enforcement hooks.
type ComplianceChecks struct {
	RequiresBootstrapInjected      bool   `json:"requires_bootstrap_injected"`
	RequiresGatedFallbackReason    bool   `json:"requires_gated_fallback_reason"`
	RecommendedPreferredToolHitRate string `json:"recommended_preferred_tool_hit_rate"`
}

// Policy is the preferred-tool-ordering and fallback-gate metadata returned
// alongside every bootstrap result.
type Policy struct {
	PolicyVersion    string              `json:"policy_version"`
	PolicyStrength   string              `json:"policy_strength"` // "strict" or "advisory"
	PreferredTools   map[string][]string `json:"preferred_tools"`
	FallbackRules    []FallbackRule      `json:"fallback_rules"`
	ComplianceChecks ComplianceChecks    `json:"compliance_checks"`
}

// DefaultPolicy returns the fixed strict-enforcement policy. The Open
// Question of strict vs. advisory default is resolved to strict.
func DefaultPolicy() Policy {
	return Policy{
		PolicyVersion:  "1.0",
		PolicyStrength: "strict",
		PreferredTools: map[string][]string{
			"search": {"query", "glob", "list_files", "get_symbol"},
			"read":   {"read_code", "get_slice"},
			"write":  {"write_code"},
		},
		FallbackRules: []FallbackRule{
			{
				GateID:       "index_unavailable",
				Condition:    "index_not_found_or_unreadable",
				AllowedTools: []string{"search", "search-in-directory", "search-with-context", "search-by-regex"},
				ReasonCode:   "flashgrep_index_unavailable",
			},
			{
				GateID:       "unsupported_operation",
				Condition:    "flashgrep_tool_contract_missing_required_operation",
				AllowedTools: []string{"search", "search-in-directory", "search-by-regex"},
				ReasonCode:   "flashgrep_operation_not_supported",
			},
			{
				GateID:       "tool_runtime_failure",
				Condition:    "flashgrep_tool_returns_error_after_valid_retry",
				AllowedTools: []string{"search", "search-in-directory", "search-with-context", "search-by-regex"},
				ReasonCode:   "flashgrep_tool_runtime_failure",
			},
		},
		ComplianceChecks: ComplianceChecks{
			RequiresBootstrapInjected:       true,
			RequiresGatedFallbackReason:     true,
			RecommendedPreferredToolHitRate: ">=0.9",
		},
	}
}

// GuidanceLines are the short, human-readable preference statements
// carried alongside the structured Policy.
func GuidanceLines() []string {
	return []string{
		"Prefer flashgrep tools before generic grep/glob when searching code.",
		"Use query/glob/get_symbol for indexed discovery and navigation.",
		"Use read_code with budgets for token-efficient reads.",
		"Use write_code for targeted, precondition-safe edits.",
	}
}

// Result is the response to one bootstrap_skill call.
type Result struct {
	OK               bool      `json:"ok"`
	Status           string    `json:"status,omitempty"` // "injected" or "already_injected"
	Error            string    `json:"error,omitempty"`  // invalid_trigger, skill_not_found, skill_unreadable
	RequestedTrigger string    `json:"requested_trigger,omitempty"`
	Allowed          []string  `json:"allowed,omitempty"`
	Message          string    `json:"message,omitempty"`
	CanonicalTrigger string    `json:"canonical_trigger,omitempty"`
	SourcePath       string    `json:"source_path,omitempty"`
	SkillHash        string    `json:"skill_hash,omitempty"`
	SkillInfo        SkillInfo `json:"skill_info,omitempty"`
	SkillOverview    string    `json:"skill_overview,omitempty"`
	SkillMarkdown    string    `json:"skill_markdown,omitempty"` // omitted (empty) in compact mode
	Policy           Policy    `json:"policy"`
	Guidance         []string  `json:"guidance,omitempty"`
}

// Bootstrapper serves bootstrap_skill for one server process. Injection is
// idempotent per process: once injected, repeat calls elide the skill body
// unless force is passed to Bootstrap.
type Bootstrapper struct {
	SkillPath string
	injected  atomic.Bool
}

// New constructs a Bootstrapper that reads the skill document from
// skillPath on first (or forced) injection.
func New(skillPath string) *Bootstrapper {
	return &Bootstrapper{SkillPath: skillPath}
}

// Bootstrap resolves requestedTrigger against ToolAliases and returns the
// injection payload, or already_injected if a prior call in this process
// already delivered the skill body and force is false.
func (b *Bootstrapper) Bootstrap(requestedTrigger string, force, compact bool) (*Result, error) {
	if !IsBootstrapTool(requestedTrigger) {
		return &Result{
			OK:               false,
			Error:            "invalid_trigger",
			RequestedTrigger: requestedTrigger,
			Allowed:          ToolAliases,
		}, nil
	}

	if b.injected.Load() && !force {
		return &Result{
			OK:               true,
			Status:           "already_injected",
			CanonicalTrigger: CanonicalTrigger,
			Policy:           DefaultPolicy(),
			Guidance:         GuidanceLines(),
		}, nil
	}

	if b.SkillPath == "" {
		return nil, ErrRepoRootUnresolved
	}

	data, err := os.ReadFile(b.SkillPath)
	if err != nil {
		kind := "skill_unreadable"
		if os.IsNotExist(err) {
			kind = "skill_not_found"
		}
		return &Result{
			OK:         false,
			Error:      kind,
			Message:    err.Error(),
			SourcePath: b.SkillPath,
		}, nil
	}

	b.injected.Store(true)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	res := &Result{
		OK:               true,
		Status:           "injected",
		CanonicalTrigger: CanonicalTrigger,
		SourcePath:       b.SkillPath,
		SkillHash:        hash,
		SkillInfo:        DefaultSkillInfo(),
		Policy:           DefaultPolicy(),
		Guidance:         GuidanceLines(),
	}
	if !compact {
		res.SkillOverview = fmt.Sprintf("%s is a local code indexing engine; prefer its indexed tools (query/glob/get_symbol/read_code/write_code) over generic grep/glob flows.", res.SkillInfo.Name)
		res.SkillMarkdown = string(data)
	}
	return res, nil
}
