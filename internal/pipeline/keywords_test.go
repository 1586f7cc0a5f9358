package pipeline

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractKeywords(t *testing.T) {
	text := "The budget meeting covered the budget and the roadmap. " +
		"Budget decisions and roadmap updates need follow-up."

	got := ExtractKeywords(text, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 keywords, got %v", got)
	}
	if got[0] != "budget" {
		t.Errorf("expected most frequent term first, got %v", got)
	}
	if got[1] != "roadmap" {
		t.Errorf("expected roadmap second, got %v", got)
	}
}

func TestExtractKeywordsSkipsStopwords(t *testing.T) {
	got := ExtractKeywords("the and or but with from they should could", 8)
	if len(got) != 0 {
		t.Errorf("stopwords leaked through: %v", got)
	}
}

func TestExtractKeywordsEmptyInput(t *testing.T) {
	if got := ExtractKeywords("", 8); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
	if got := ExtractKeywords("budget", 0); got != nil {
		t.Errorf("expected nil for topK 0, got %v", got)
	}
}

func TestExtractKeywordsShortTokensIgnored(t *testing.T) {
	// Tokens must be at least three letters.
	got := ExtractKeywords("go go go deployment deployment", 8)
	if !reflect.DeepEqual(got, []string{"deployment"}) {
		t.Errorf("expected only deployment, got %v", got)
	}
}

func TestExtractKeywordsDeterministicTies(t *testing.T) {
	first := ExtractKeywords("alpha beta gamma", 3)
	second := ExtractKeywords("alpha beta gamma", 3)
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("tie ordering not deterministic: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(first, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("expected alphabetical tie break, got %v", first)
	}
}
