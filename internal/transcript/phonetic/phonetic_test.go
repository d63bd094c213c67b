package phonetic_test

import (
	"testing"

	"github.com/moyeo-ai/moyeo/internal/transcript/phonetic"
)

func TestMatcherNearMiss(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	vocabulary := []string{"Kubernetes", "Postgres", "Terraform"}

	corrected, conf, matched := m.Match("kubernets", vocabulary)
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "kubernets")
	}
	if corrected != "Kubernetes" {
		t.Errorf("Match(%q): corrected=%q, want %q", "kubernets", corrected, "Kubernetes")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "kubernets", conf)
	}
}

func TestMatcherMultiWordEntity(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	vocabulary := []string{"Platform Infra Team", "Terraform", "Postgres"}

	corrected, conf, matched := m.Match("platform infra teem", vocabulary)
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "platform infra teem")
	}
	if corrected != "Platform Infra Team" {
		t.Errorf("Match(%q): corrected=%q, want %q", "platform infra teem", corrected, "Platform Infra Team")
	}
	if conf < 0.7 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.7", "platform infra teem", conf)
	}
}

func TestMatcherNoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	vocabulary := []string{"Kubernetes", "Terraform"}

	corrected, conf, matched := m.Match("hello", vocabulary)
	if matched {
		t.Fatalf("Match(%q): matched=true, want false", "hello")
	}
	if corrected != "hello" {
		t.Errorf("Match(%q): corrected=%q, want original word", "hello", corrected)
	}
	if conf != 0 {
		t.Errorf("Match(%q): confidence=%f, want 0", "hello", conf)
	}
}

func TestMatcherCaseInsensitivity(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, _, matched := m.Match("TERRAFORM", []string{"Terraform"})
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "TERRAFORM")
	}
	// Returns the vocabulary entry's original casing.
	if corrected != "Terraform" {
		t.Errorf("Match(%q): corrected=%q, want %q", "TERRAFORM", corrected, "Terraform")
	}
}

func TestMatcherExactMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	corrected, conf, matched := m.Match("postgres", []string{"Postgres", "Kubernetes"})
	if !matched {
		t.Fatalf("Match(%q): matched=false, want true", "postgres")
	}
	if corrected != "Postgres" {
		t.Errorf("Match(%q): corrected=%q, want %q", "postgres", corrected, "Postgres")
	}
	if conf < 0.9 {
		t.Errorf("Match(%q): confidence=%f, want >= 0.9 for near-exact match", "postgres", conf)
	}
}

func TestMatcherThresholdFiltering(t *testing.T) {
	t.Parallel()

	m := phonetic.New(
		phonetic.WithPhoneticThreshold(0.99),
		phonetic.WithFuzzyThreshold(0.99),
	)
	if _, _, matched := m.Match("kubernets", []string{"Kubernetes"}); matched {
		t.Fatal("near-miss matched despite 0.99 thresholds")
	}
}

func TestMatcherEmptyInputs(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if corrected, conf, matched := m.Match("kubernetes", nil); matched || corrected != "kubernetes" || conf != 0 {
		t.Errorf("Match(nil vocabulary) = (%q, %f, %v), want input unchanged", corrected, conf, matched)
	}
	if corrected, conf, matched := m.Match("", []string{"Kubernetes"}); matched || corrected != "" || conf != 0 {
		t.Errorf("Match(empty word) = (%q, %f, %v), want input unchanged", corrected, conf, matched)
	}
}
