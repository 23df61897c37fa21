package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// AbbreviationEntry represents a prescription abbreviation
type AbbreviationEntry struct {
	Expanded   string   `json:"expanded"`
	Alternates []string `json:"alternates"`
}

// SigConfig holds the abbreviation table used to expand dosing instructions
type SigConfig struct {
	Abbreviations map[string]AbbreviationEntry `json:"abbreviations"`
}

// DefaultSigConfig returns the built-in table of common Latin dosing
// abbreviations found on handwritten prescriptions.
func DefaultSigConfig() *SigConfig {
	return &SigConfig{Abbreviations: map[string]AbbreviationEntry{
		"od":   {Expanded: "once daily", Alternates: []string{"qd"}},
		"bd":   {Expanded: "twice daily", Alternates: []string{"bid"}},
		"tds":  {Expanded: "three times daily", Alternates: []string{"tid"}},
		"qds":  {Expanded: "four times daily", Alternates: []string{"qid"}},
		"hs":   {Expanded: "at bedtime", Alternates: []string{"qhs"}},
		"prn":  {Expanded: "as needed", Alternates: []string{"sos"}},
		"stat": {Expanded: "immediately"},
		"ac":   {Expanded: "before meals"},
		"pc":   {Expanded: "after meals"},
		"qam":  {Expanded: "every morning", Alternates: []string{"om"}},
		"qpm":  {Expanded: "every evening"},
		"tab":  {Expanded: "tablet", Alternates: []string{"tabs"}},
		"cap":  {Expanded: "capsule", Alternates: []string{"caps"}},
		"po":   {Expanded: "by mouth"},
	}}
}

// SigNormalizer expands dosing abbreviations such as "1 tab bd pc" into
// "1 tablet twice daily after meals".
type SigNormalizer struct {
	lookup map[string]string
}

// NewSigNormalizer builds a normalizer from cfg; a nil cfg uses the defaults.
func NewSigNormalizer(cfg *SigConfig) *SigNormalizer {
	if cfg == nil {
		cfg = DefaultSigConfig()
	}
	lookup := make(map[string]string)
	for abbr, entry := range cfg.Abbreviations {
		lookup[sigKey(abbr)] = entry.Expanded
		for _, alt := range entry.Alternates {
			lookup[sigKey(alt)] = entry.Expanded
		}
	}
	return &SigNormalizer{lookup: lookup}
}

// LoadSigNormalizer reads an abbreviation table from a JSON file and merges
// it over the defaults.
func LoadSigNormalizer(configPath string) (*SigNormalizer, error) {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var override SigConfig
	if err := json.Unmarshal(configFile, &override); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := DefaultSigConfig()
	for abbr, entry := range override.Abbreviations {
		cfg.Abbreviations[abbr] = entry
	}
	return NewSigNormalizer(cfg), nil
}

// Normalize expands every whitespace-separated token that is a known
// abbreviation. Dots inside a token are ignored ("b.d." matches "bd");
// everything else is kept as written.
func (n *SigNormalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	words := strings.Fields(text)
	changed := false
	for i, word := range words {
		trailing := ""
		if strings.HasSuffix(word, ",") || strings.HasSuffix(word, ";") {
			trailing = word[len(word)-1:]
			word = word[:len(word)-1]
		}
		if expanded, ok := n.lookup[sigKey(word)]; ok {
			words[i] = expanded + trailing
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(words, " ")
}

func sigKey(token string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(token), ".", ""))
}

// NormalizeIdentifier converts a string to a lowercase identifier made of
// letters, digits and single underscores.
func NormalizeIdentifier(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return ""
	}

	var out strings.Builder
	lastUnderscore := false
	for _, ch := range trimmed {
		isAlphaNum := (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
		if isAlphaNum {
			out.WriteRune(ch)
			lastUnderscore = false
		} else if !lastUnderscore {
			out.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(out.String(), "_")
}

// GetSigConfigPath returns the abbreviation override file, if configured.
func GetSigConfigPath() string {
	return os.Getenv("SIG_ABBREV_CONFIG")
}
