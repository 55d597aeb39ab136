// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cost projects token usage and API spend for a documentation run
// before any LLM call is made. All functions are pure; the constants are
// calibrated empirically, not measured at runtime.
package cost

import "sort"

// Approximation constants shared by every phase projection.
const (
	// charsPerToken converts raw character counts to tokens.
	charsPerToken = 3.5

	// promptOverhead inflates file-content tokens for the instructions and
	// scaffolding wrapped around them.
	promptOverhead = 1.15

	// bandWidth is the relative width of the uncertainty band.
	bandWidth = 0.20
)

// Fixed per-phase output projections, in tokens.
const (
	identifyOutputTokens      = 1500
	relationshipsOutputTokens = 1200
	orderOutputTokens         = 300
	chapterOutputTokens       = 3500

	// chapterInputShare scales the repository input tokens down for the
	// narrower per-chapter context.
	chapterInputShare = 0.25
)

// PhaseEstimate is the projection for one pipeline phase.
type PhaseEstimate struct {
	Phase        string `json:"phase"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Breakdown is the full token projection for one run.
type Breakdown struct {
	Phases       []PhaseEstimate `json:"phases"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
}

// EstimateTokens projects per-phase token usage from the crawled file
// contents and the expected chapter count.
func EstimateTokens(files map[string]string, chapterCount int) Breakdown {
	var chars int
	for _, content := range files {
		chars += len(content)
	}
	repoTokens := int(float64(chars) / charsPerToken * promptOverhead)
	chapterInput := int(float64(repoTokens) * chapterInputShare)

	phases := []PhaseEstimate{
		{Phase: "identify_abstractions", InputTokens: repoTokens, OutputTokens: identifyOutputTokens},
		{Phase: "analyze_relationships", InputTokens: repoTokens, OutputTokens: relationshipsOutputTokens},
		{Phase: "order_chapters", InputTokens: identifyOutputTokens + relationshipsOutputTokens, OutputTokens: orderOutputTokens},
		{Phase: "write_chapters", InputTokens: chapterInput * chapterCount, OutputTokens: chapterOutputTokens * chapterCount},
	}

	var b Breakdown
	b.Phases = phases
	for _, p := range phases {
		b.InputTokens += p.InputTokens
		b.OutputTokens += p.OutputTokens
	}
	b.TotalTokens = b.InputTokens + b.OutputTokens
	return b
}

// ModelPricing is a provider/model pair with published per-1000-token
// prices in USD.
type ModelPricing struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
}

// Band is a cost estimate in USD with its uncertainty band.
type Band struct {
	Low       float64 `json:"low"`
	Estimated float64 `json:"estimated"`
	High      float64 `json:"high"`
}

// CalculateCost converts a token breakdown to a dollar estimate for one
// model, with a ±20% band around the point estimate.
func CalculateCost(model ModelPricing, b Breakdown) Band {
	estimated := float64(b.InputTokens)/1000*model.InputPer1K +
		float64(b.OutputTokens)/1000*model.OutputPer1K
	return Band{
		Low:       estimated * (1 - bandWidth),
		Estimated: estimated,
		High:      estimated * (1 + bandWidth),
	}
}

// Estimate pairs a model with its projected cost.
type Estimate struct {
	Pricing ModelPricing `json:"pricing"`
	Tokens  Breakdown    `json:"tokens"`
	Cost    Band         `json:"cost"`
}

// CompareCosts projects the run cost for every candidate model and returns
// them sorted ascending by point estimate, cheapest first.
func CompareCosts(files map[string]string, chapterCount int, pricing []ModelPricing) []Estimate {
	b := EstimateTokens(files, chapterCount)
	estimates := make([]Estimate, 0, len(pricing))
	for _, m := range pricing {
		estimates = append(estimates, Estimate{Pricing: m, Tokens: b, Cost: CalculateCost(m, b)})
	}
	sort.SliceStable(estimates, func(i, j int) bool {
		return estimates[i].Cost.Estimated < estimates[j].Cost.Estimated
	})
	return estimates
}

// DefaultPricing lists published prices for commonly used models, USD per
// 1000 tokens.
func DefaultPricing() []ModelPricing {
	return []ModelPricing{
		{Provider: "openai", Model: "gpt-4o", InputPer1K: 0.0025, OutputPer1K: 0.01},
		{Provider: "openai", Model: "gpt-4o-mini", InputPer1K: 0.00015, OutputPer1K: 0.0006},
		{Provider: "anthropic", Model: "claude-sonnet-4-20250514", InputPer1K: 0.003, OutputPer1K: 0.015},
		{Provider: "anthropic", Model: "claude-3-5-haiku-20241022", InputPer1K: 0.0008, OutputPer1K: 0.004},
		{Provider: "ollama", Model: "llama3.1", InputPer1K: 0, OutputPer1K: 0},
	}
}
