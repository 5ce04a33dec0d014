// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package costs maps model identifiers to per-1000-token prices.
package costs

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"sigs.k8s.io/yaml"
)

// ErrUnknownModel is returned when no pricing is known for a model.
var ErrUnknownModel = errors.New("no pricing for model")

// Pricing is the USD price per 1000 tokens.
type Pricing struct {
	Input  float64 `json:"input"`
	Output float64 `json:"output"`
}

// PromptCost returns the cost of the given number of prompt tokens.
func (p Pricing) PromptCost(tokens float64) float64 {
	return p.Input * (tokens / 1000.0)
}

// CompletionCost returns the cost of the given number of completion tokens.
func (p Pricing) CompletionCost(tokens float64) float64 {
	return p.Output * (tokens / 1000.0)
}

// Cost prices a pair of token counts and returns the prompt, completion and
// total cost.
func (p Pricing) Cost(promptTokens, completionTokens float64) (prompt, completion, total float64) {
	prompt = p.PromptCost(promptTokens)
	completion = p.CompletionCost(completionTokens)
	return prompt, completion, prompt + completion
}

// Table looks up the pricing of a model.
type Table interface {
	Lookup(model string) (Pricing, error)
}

// StaticTable is a Table backed by a map.
type StaticTable map[string]Pricing

var _ Table = StaticTable{}

func (t StaticTable) Lookup(model string) (Pricing, error) {
	p, ok := t[model]
	if !ok {
		return Pricing{}, fmt.Errorf("%w %q", ErrUnknownModel, model)
	}
	return p, nil
}

// Models returns the priced model ids, sorted.
func (t StaticTable) Models() []string {
	return slices.Sorted(maps.Keys(t))
}

// Default returns a fresh copy of the built-in price list.
func Default() StaticTable {
	return StaticTable{
		"gpt-4":                  {Input: 0.03, Output: 0.06},
		"gpt-4-0613":             {Input: 0.03, Output: 0.06},
		"gpt-4-32k":              {Input: 0.06, Output: 0.12},
		"gpt-4-32k-0613":         {Input: 0.06, Output: 0.12},
		"gpt-3.5-turbo":          {Input: 0.0015, Output: 0.002},
		"gpt-3.5-turbo-0613":     {Input: 0.0015, Output: 0.002},
		"gpt-3.5-turbo-16k":      {Input: 0.003, Output: 0.004},
		"gpt-3.5-turbo-16k-0613": {Input: 0.003, Output: 0.004},
		"text-davinci-003":       {Input: 0.02, Output: 0.02},
	}
}

// LoadTable reads a YAML (or JSON) price list and merges it over the built-in one.
//
//	gpt-4:
//	  input: 0.03
//	  output: 0.06
func LoadTable(path string) (StaticTable, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cost table %q: %w", path, err)
	}
	return ParseTable(b)
}

// ParseTable parses a YAML price list and merges it over the built-in one.
func ParseTable(b []byte) (StaticTable, error) {
	overrides := StaticTable{}
	if err := yaml.Unmarshal(b, &overrides); err != nil {
		return nil, fmt.Errorf("parsing cost table: %w", err)
	}
	table := Default()
	maps.Copy(table, overrides)
	return table, nil
}
