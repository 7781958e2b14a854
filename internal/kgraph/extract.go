package kgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sira-labs/sira/provider"
)

const extractInputCap = 15000

const extractPrompt = `You are an expert Knowledge Graph extractor.

Your task:
1. Extract entities with labels and types.
2. Extract relationships between entities (subject -> relation -> object).
3. Output strictly valid JSON only, following the required schema.

ENTITY TYPES allowed:
PERSON, ORG, PRODUCT, TECH, FRAMEWORK, COUNTRY, EVENT,
TOOL, CONCEPT, SKILL, METRIC, POLICY, DATASET, UNKNOWN

RELATION RULES:
- Keep relation labels short, 1-4 words max.
- No long sentences.
- No duplicate relations.

STRICT OUTPUT SCHEMA:
{
  "nodes": [
    { "id": "kubernetes", "label": "Kubernetes", "type": "TECH" }
  ],
  "edges": [
    { "source": "kubernetes", "target": "cloud-native", "label": "enables" }
  ]
}

Rules:
- IDs must be lowercase, hyphen-separated.
- JSON only, no explanations, no markdown.
- If unsure, classify entity type as "UNKNOWN".

Now extract the knowledge graph from this text:

TEXT:
-----
%s
-----`

// ParseError reports extractor output that could not be decoded as a graph.
// Callers handle it by substituting an empty graph; Raw keeps the offending
// payload for logging.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("knowledge graph parse failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor turns free text into graphs via the text-generation capability.
type Extractor struct {
	LLM provider.Provider
}

// Extract builds a knowledge graph from text. Empty input yields an empty
// graph; decode failures yield (Empty, *ParseError) so the caller's fallback
// path is explicit rather than exception-driven.
func (x Extractor) Extract(ctx context.Context, text string) (Graph, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Empty(), nil
	}
	if len(text) > extractInputCap {
		text = text[:extractInputCap]
	}

	completion, err := x.LLM.Complete(ctx, fmt.Sprintf(extractPrompt, text), true)
	if err != nil || completion == "" {
		// Provider trouble is equivalent to "no answer".
		return Empty(), nil
	}
	return Parse(completion)
}

// ExtractFromTexts folds several texts into one accumulated graph.
func (x Extractor) ExtractFromTexts(ctx context.Context, texts []string) Graph {
	acc := Empty()
	for _, t := range texts {
		g, err := x.Extract(ctx, t)
		if err != nil {
			continue
		}
		acc = Merge(acc, g)
	}
	return acc
}

// Parse decodes raw extractor output into a finalized graph. It tolerates
// fenced markdown blocks around the JSON body.
func Parse(raw string) (Graph, error) {
	var payload struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		cleaned := stripFences(raw)
		if err2 := json.Unmarshal([]byte(cleaned), &payload); err2 != nil {
			return Empty(), &ParseError{Raw: raw, Err: err}
		}
	}
	return finalize(payload.Nodes, payload.Edges), nil
}

func stripFences(raw string) string {
	s := raw
	if i := strings.LastIndex(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	}
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
