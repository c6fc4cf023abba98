package rules

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
)

// Rule holds the keywords of one document type. Phrases match as substrings,
// tokens only as standalone words.
type Rule struct {
	Phrases []string `yaml:"phrases" json:"phrases"`
	Tokens  []string `yaml:"tokens" json:"tokens"`
}

type RuleSet map[string]Rule

func DefaultRules() RuleSet {
	return RuleSet{
		"TLL": {
			Phrases: []string{
				"vordering tot inbewaringstelling",
				"vordering inbewaringstelling",
				"inbewaringstelling",
				"in bewaringstelling",
				"vordering ibs",
				"vord ibs",
				"vordibs",
			},
			Tokens: []string{"tll", "ibs"},
		},
		"UJD": {
			Phrases: []string{
				"uittreksel justitiele documentatie",
				"justitiele documentatie",
				"uittreksel",
			},
			Tokens: []string{"ujd"},
		},
		"RECLASS": {
			Phrases: []string{
				"reclasseringsrapport",
				"reclasseringsadvies",
				"adviesrapportage toezicht",
				"voortgangsrapportage",
				"vroeghulp",
				"reclassering",
				"adviesrapportage",
				"reclasserings",
			},
			Tokens: []string{"recl", "reclass"},
		},
		"VC": {
			Phrases: []string{
				"voorgeleidingsconsult",
				"voor geleidingsconsult",
				"voor geleidings consult",
				"voorgeleiding rc",
				"voor geleiding rc",
				"voor geleiding rechter commissaris",
				"voor geleiding rechter-commissaris",
				"voorgeleiding rechter commissaris",
				"voorgeleiding rechter-commissaris",
				"verhoor raadkamer",
				"stukken rc",
				"pro justitia consult",
				"projustitia consult",
				"projustitiaconsult",
				"nifp consult",
				"nifpconsult",
				"trajectconsult",
				"traject consult",
				"voorgeleiding",
				"voor geleiding",
			},
			Tokens: []string{"vc", "vgc"},
		},
		"PV": {
			Phrases: []string{
				"proces verbaal",
				"proces-verbaal",
				"procesverbaal",
				"pv vgl",
				"pvvgl",
				"nazending",
				"verhoor",
			},
			Tokens: []string{"pv"},
		},
		"PJ": {
			Phrases: []string{
				"oude pj",
				"oud pj",
				"rapport pro justitia",
				"pro justitia",
				"projustitia",
				"nifp",
			},
			Tokens: []string{"pj"},
		},
	}
}

// LoadFile reads an external rule file. YAML is a superset of JSON, so both
// formats are accepted. Type codes are upper-cased.
func LoadFile(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	var decoded map[string]Rule
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode rule file %s: %w", path, err)
	}
	out := make(RuleSet, len(decoded))
	for code, rule := range decoded {
		code = domain.NormalizeTypeCode(code)
		if code == "" {
			continue
		}
		existing := out[code]
		out[code] = Rule{
			Phrases: append(existing.Phrases, rule.Phrases...),
			Tokens:  append(existing.Tokens, rule.Tokens...),
		}
	}
	return out, nil
}

// Merge unions extra into base for the allowed types only. Base keywords keep
// their position, extensions are appended, duplicates are dropped.
func Merge(base, extra RuleSet, allowed []string) RuleSet {
	out := make(RuleSet, len(allowed))
	for _, code := range allowed {
		code = domain.NormalizeTypeCode(code)
		if code == "" || code == domain.TypeUnknown {
			continue
		}
		b, e := base[code], extra[code]
		out[code] = Rule{
			Phrases: dedupe(append(append([]string(nil), b.Phrases...), e.Phrases...)),
			Tokens:  dedupe(append(append([]string(nil), b.Tokens...), e.Tokens...)),
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
