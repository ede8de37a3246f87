// Package gemini implements the single upstream wire shape gemrelay speaks:
// the Gemini streamGenerateContent API in SSE mode.
//
// Upstream JSON is read through optional-field extraction rather than strict
// deserialization so that shape drift in fields the relay does not use never
// breaks a stream.
package gemini

import (
	"fmt"
	"sort"
)

const (
	// DefaultBaseURL is the public Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultMnemonic is the model mnemonic used when a request names none.
	DefaultMnemonic = "fast"
)

// Models maps short client-facing mnemonics to upstream model identifiers.
type Models map[string]string

// DefaultModels returns the built-in mnemonic table.
func DefaultModels() Models {
	return Models{
		"fast": "gemini-2.5-flash",
		"lite": "gemini-2.5-flash-lite",
		"pro":  "gemini-2.5-pro",
	}
}

// ModelTable resolves mnemonics against a Models table with a designated
// default.
type ModelTable struct {
	models   Models
	fallback string
}

// NewModelTable returns a ModelTable. The default mnemonic must be present in
// models.
func NewModelTable(models Models, defaultMnemonic string) (*ModelTable, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("model table is empty")
	}

	if _, ok := models[defaultMnemonic]; !ok {
		return nil, fmt.Errorf("default model %q is not in the model table", defaultMnemonic)
	}

	copied := make(Models, len(models))
	for k, v := range models {
		copied[k] = v
	}

	return &ModelTable{models: copied, fallback: defaultMnemonic}, nil
}

// Resolve returns the mnemonic actually used and its upstream model
// identifier. An empty or unknown mnemonic resolves to the default.
func (t *ModelTable) Resolve(mnemonic string) (string, string) {
	if id, ok := t.models[mnemonic]; ok {
		return mnemonic, id
	}
	return t.fallback, t.models[t.fallback]
}

// Default returns the default mnemonic.
func (t *ModelTable) Default() string {
	return t.fallback
}

// Mnemonics returns the known mnemonics in sorted order.
func (t *ModelTable) Mnemonics() []string {
	keys := make([]string, 0, len(t.models))
	for k := range t.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
