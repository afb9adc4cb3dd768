// Package config holds the dialog configuration: the literal tokens each
// step accepts, the external property search link and the history size.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed dialog.yaml
var defaultDialogYAML []byte

// Keywords enumerates the accepted literal tokens per intent.
type Keywords struct {
	Yes         []string `yaml:"yes"`
	No          []string `yaml:"no"`
	Consult     []string `yaml:"consult"`
	Apply       []string `yaml:"apply"`
	SearchOther []string `yaml:"search_other"`
	History     []string `yaml:"history"`
	Detail      []string `yaml:"detail"`
}

type Dialog struct {
	Keywords          Keywords `yaml:"keywords"`
	PropertySearchURL string   `yaml:"property_search_url"`
	HistoryLimit      int      `yaml:"history_limit"`
}

// DefaultDialog returns the embedded defaults.
func DefaultDialog() *Dialog {
	d := &Dialog{}
	if err := yaml.Unmarshal(defaultDialogYAML, d); err != nil {
		panic(fmt.Sprintf("config: embedded dialog.yaml: %v", err))
	}
	return d
}

// LoadFromFile parses a dialog YAML file without applying defaults.
func LoadFromFile(path string) (*Dialog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read dialog config: %w", err)
	}
	d := &Dialog{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("config: parse dialog config: %w", err)
	}
	return d, nil
}

// Load returns the defaults, overlaid with path when it is non-empty, and
// validated.
func Load(path string) (*Dialog, error) {
	d := DefaultDialog()
	if strings.TrimSpace(path) != "" {
		override, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		d.Merge(override)
		slog.Debug("loaded dialog config", "path", path)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Merge overlays the non-empty fields of other. A token list in other
// replaces the whole list rather than extending it.
func (d *Dialog) Merge(other *Dialog) {
	if other == nil {
		return
	}
	mergeList(&d.Keywords.Yes, other.Keywords.Yes)
	mergeList(&d.Keywords.No, other.Keywords.No)
	mergeList(&d.Keywords.Consult, other.Keywords.Consult)
	mergeList(&d.Keywords.Apply, other.Keywords.Apply)
	mergeList(&d.Keywords.SearchOther, other.Keywords.SearchOther)
	mergeList(&d.Keywords.History, other.Keywords.History)
	mergeList(&d.Keywords.Detail, other.Keywords.Detail)
	if other.PropertySearchURL != "" {
		d.PropertySearchURL = other.PropertySearchURL
	}
	if other.HistoryLimit != 0 {
		d.HistoryLimit = other.HistoryLimit
	}
}

func mergeList(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = append([]string(nil), src...)
	}
}

// Validate rejects empty token sets, tokens shared by two intents of the
// same step, and history sizes that a single digit cannot address.
func (d *Dialog) Validate() error {
	k := d.Keywords
	sets := map[string][]string{
		"yes": k.Yes, "no": k.No, "consult": k.Consult, "apply": k.Apply,
		"search_other": k.SearchOther, "history": k.History, "detail": k.Detail,
	}
	for name, tokens := range sets {
		if len(tokens) == 0 {
			return fmt.Errorf("config: keywords.%s must not be empty", name)
		}
		for _, tok := range tokens {
			if strings.TrimSpace(tok) == "" {
				return fmt.Errorf("config: keywords.%s contains a blank token", name)
			}
			if isDigits(strings.TrimSpace(tok)) {
				return fmt.Errorf("config: keywords.%s token %q collides with numeric selection", name, tok)
			}
		}
	}
	if err := disjoint(map[string][]string{"yes": k.Yes, "no": k.No, "consult": k.Consult}); err != nil {
		return err
	}
	if err := disjoint(map[string][]string{"apply": k.Apply, "search_other": k.SearchOther, "consult": k.Consult}); err != nil {
		return err
	}
	if d.HistoryLimit < 1 || d.HistoryLimit > 9 {
		return fmt.Errorf("config: history_limit must be between 1 and 9, got %d", d.HistoryLimit)
	}
	u, err := url.Parse(d.PropertySearchURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("config: property_search_url must be an absolute http(s) URL")
	}
	return nil
}

func disjoint(sets map[string][]string) error {
	seen := map[string]string{}
	for name, tokens := range sets {
		for _, tok := range tokens {
			tok = strings.TrimSpace(tok)
			if other, ok := seen[tok]; ok && other != name {
				return fmt.Errorf("config: token %q is used by both %s and %s", tok, other, name)
			}
			seen[tok] = name
		}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
