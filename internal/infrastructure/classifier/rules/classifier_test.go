package rules

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

func newTestClassifier(extra RuleSet) *Classifier {
	return New(domain.DefaultAllowedTypes, extra, nil)
}

func TestClassifyFilenamePrefixShortcut(t *testing.T) {
	got := newTestClassifier(nil).Classify("PV_interview_01.pdf", "geen relevante woorden hier")
	if got.Type != "PV" || got.Source != domain.DetectionFilenamePrefix {
		t.Fatalf("expected PV via filename prefix, got %+v", got)
	}
}

func TestClassifyContentPhrase(t *testing.T) {
	text := "Hierbij ontvangt u het reclasseringsrapport betreffende de verdachte."
	got := newTestClassifier(nil).Classify("dossier_scan.pdf", text)
	if got.Type != "RECLASS" || got.Source != domain.DetectionContent {
		t.Fatalf("expected RECLASS via content, got %+v", got)
	}
	if want := 100 + len("reclasseringsrapport"); got.Score != want {
		t.Fatalf("expected score %d, got %d", want, got.Score)
	}
	if got.Keyword != "reclasseringsrapport" {
		t.Fatalf("unexpected keyword %q", got.Keyword)
	}
}

func TestClassifyFilenameBeatsContent(t *testing.T) {
	got := newTestClassifier(nil).Classify("Verhoor_2024-01.pdf", "reclasseringsrapport")
	if got.Type != "PV" || got.Source != domain.DetectionFilename {
		t.Fatalf("expected PV from filename keywords, got %+v", got)
	}
}

func TestClassifyTieBreaksByPriority(t *testing.T) {
	got := newTestClassifier(nil).Classify("scan.pdf", "zie pv en vc")
	if got.Type != "VC" {
		t.Fatalf("expected VC to win tie over PV, got %+v", got)
	}
}

func TestClassifyStripsDiacriticsAndSeparators(t *testing.T) {
	got := newTestClassifier(nil).Classify("scan.pdf", "UITTREKSEL JUSTITIËLE DOCUMENTATIE")
	if got.Type != "UJD" || got.Keyword != "uittreksel justitiele documentatie" {
		t.Fatalf("expected UJD phrase match, got %+v", got)
	}

	got = newTestClassifier(nil).Classify("scan.pdf", "Proces_verbaal van bevindingen")
	if got.Type != "PV" {
		t.Fatalf("expected PV from separator-normalised phrase, got %+v", got)
	}
}

func TestClassifyTokensRequireWordBoundary(t *testing.T) {
	got := newTestClassifier(nil).Classify("offerte.pdf", "pvc buizen en apvs")
	if got.Type != domain.TypeUnknown {
		t.Fatalf("embedded abbreviations must not match, got %+v", got)
	}
	got = newTestClassifier(nil).Classify("offerte.pdf", "zie bijlage (pv) hierna")
	if got.Type != "PV" {
		t.Fatalf("expected standalone pv token to match, got %+v", got)
	}
}

func TestClassifyEmptyTextIsUnknown(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		got := newTestClassifier(nil).Classify("scan.pdf", text)
		if got.Type != domain.TypeUnknown || got.Source != domain.DetectionNone {
			t.Fatalf("expected UNKNOWN, got %+v", got)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier(nil)
	first := c.Classify("bijlage.pdf", "pro justitia rapportage over voorgeleiding")
	for i := 0; i < 10; i++ {
		if got := c.Classify("bijlage.pdf", "pro justitia rapportage over voorgeleiding"); got != first {
			t.Fatalf("non-deterministic result: %+v vs %+v", got, first)
		}
	}
}

func TestMergeAppendsAndDedupes(t *testing.T) {
	extra := RuleSet{
		"PJ":  {Phrases: []string{"nifp", "memo officier"}, Tokens: []string{"pj", "pjr"}},
		"XYZ": {Phrases: []string{"geheim"}},
	}
	merged := Merge(DefaultRules(), extra, domain.DefaultAllowedTypes)
	if _, ok := merged["XYZ"]; ok {
		t.Fatalf("types outside the allowed set must be dropped")
	}
	pj := merged["PJ"]
	wantPhrases := append(append([]string(nil), DefaultRules()["PJ"].Phrases...), "memo officier")
	if !reflect.DeepEqual(pj.Phrases, wantPhrases) {
		t.Fatalf("unexpected phrases %v", pj.Phrases)
	}
	if !reflect.DeepEqual(pj.Tokens, []string{"pj", "pjr"}) {
		t.Fatalf("unexpected tokens %v", pj.Tokens)
	}
}

func TestNewWithRuleFileLoadsYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(yamlPath, []byte("pj:\n  phrases:\n    - memo van de officier\n"), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	jsonPath := filepath.Join(dir, "rules.json")
	if err := os.WriteFile(jsonPath, []byte(`{"UJD": {"phrases": [], "tokens": ["jdoc"]}}`), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}

	c := NewWithRuleFile(domain.DefaultAllowedTypes, yamlPath, nil)
	if got := c.Classify("scan.pdf", "Memo van de Officier"); got.Type != "PJ" {
		t.Fatalf("expected PJ from yaml extension, got %+v", got)
	}
	c = NewWithRuleFile(domain.DefaultAllowedTypes, jsonPath, nil)
	if got := c.Classify("scan.pdf", "kenmerk jdoc 12"); got.Type != "UJD" {
		t.Fatalf("expected UJD from json extension, got %+v", got)
	}
}

func TestNewWithRuleFileFallsBackOnError(t *testing.T) {
	c := NewWithRuleFile(domain.DefaultAllowedTypes, filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if got := c.Classify("scan.pdf", "proces-verbaal"); got.Type != "PV" {
		t.Fatalf("defaults must survive a missing rule file, got %+v", got)
	}
}
