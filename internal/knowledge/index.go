// Package knowledge loads the structured reference datasets and serves
// grounding lookups. The index is built once at startup and never mutated,
// so concurrent reads need no locking.
package knowledge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kisanbot/internal/domain"
)

// Entry is one searchable fact from a dataset.
type Entry struct {
	ID       string
	Category string
	Topic    string
	Text     string
	Fields   map[string]string
}

// datasetFile maps a file in the data directory to its category and the
// JSON key holding its record array.
type datasetFile struct {
	name     string
	category string
	arrayKey string
}

var datasetFiles = []datasetFile{
	{"crop_diseases.json", "disease", "diseases"},
	{"market_prices.json", "price", "records"},
	{"government_schemes.json", "scheme", "schemes"},
	{"knowledge_base.json", "general", "entries"},
}

// Index is the in-memory knowledge base.
type Index struct {
	entries []Entry // insertion order preserved for tie-breaking
	logger  *slog.Logger
}

type IndexConfig struct {
	DataDir string
	Logger  *slog.Logger
}

// Load reads all dataset files from the data directory. Missing files are
// logged and skipped; a directory with no datasets yields an empty index
// that answers every search with no matches.
func Load(cfg IndexConfig) (*Index, error) {
	idx := &Index{logger: cfg.Logger}

	for _, df := range datasetFiles {
		path := filepath.Join(cfg.DataDir, df.name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				cfg.Logger.Warn("dataset file not found, skipping", "path", path)
				continue
			}
			return nil, fmt.Errorf("read dataset %s: %w", path, err)
		}

		entries, err := parseDataset(data, df)
		if err != nil {
			return nil, fmt.Errorf("parse dataset %s: %w", path, err)
		}

		idx.entries = append(idx.entries, entries...)
		cfg.Logger.Info("dataset loaded", "file", df.name, "category", df.category, "entries", len(entries))
	}

	return idx, nil
}

// parseDataset decodes one dataset file. Each file is either a bare array
// of records or an object whose arrayKey field holds the records.
func parseDataset(data []byte, df datasetFile) ([]Entry, error) {
	var records []map[string]any

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err == nil {
		raw, ok := wrapper[df.arrayKey]
		if !ok {
			return nil, fmt.Errorf("missing %q array", df.arrayKey)
		}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %q array: %w", df.arrayKey, err)
		}
	} else if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unrecognized dataset shape: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for i, rec := range records {
		e := Entry{
			Category: df.category,
			Fields:   make(map[string]string),
		}

		var text strings.Builder
		for k, v := range rec {
			s, ok := v.(string)
			if !ok {
				s = fmt.Sprintf("%v", v)
			}
			e.Fields[k] = s
		}

		// Stable field order for the searchable text.
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			text.WriteString(k)
			text.WriteString(": ")
			text.WriteString(e.Fields[k])
			text.WriteString(". ")
		}

		e.ID = firstNonEmpty(e.Fields["id"], e.Fields["name"], fmt.Sprintf("%s_%d", df.category, i))
		e.Topic = firstNonEmpty(e.Fields["name"], e.Fields["title"], e.Fields["commodity"], e.Fields["disease"], e.ID)
		e.Text = strings.TrimSpace(text.String())
		entries = append(entries, e)
	}

	return entries, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Search returns ranked grounding facts for a query. Scores are in [0,1],
// sorted descending; ties keep dataset insertion order. A query with no
// matches returns an empty slice, never an error.
func (idx *Index) Search(query, category string) []domain.GroundingFact {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var facts []domain.GroundingFact
	for _, e := range idx.entries {
		if category != "" && e.Category != category {
			continue
		}
		score := overlapScore(terms, e)
		if score <= 0 {
			continue
		}
		facts = append(facts, domain.GroundingFact{
			Topic: e.Topic,
			Text:  e.Text,
			Score: score,
		})
	}

	sort.SliceStable(facts, func(i, j int) bool {
		return facts[i].Score > facts[j].Score
	})
	return facts
}

// TopK is Search limited to the k best facts.
func (idx *Index) TopK(query, category string, k int) []domain.GroundingFact {
	facts := idx.Search(query, category)
	if k > 0 && len(facts) > k {
		facts = facts[:k]
	}
	return facts
}

// Size returns the total number of indexed entries.
func (idx *Index) Size() int { return len(idx.entries) }

// overlapScore is the fraction of query terms present in the entry, with a
// small boost when a term hits the topic field. Clamped to 1.
func overlapScore(terms []string, e Entry) float64 {
	text := strings.ToLower(e.Text)
	topic := strings.ToLower(e.Topic)

	matched := 0.0
	for _, t := range terms {
		if strings.Contains(topic, t) {
			matched += 1.5
		} else if strings.Contains(text, t) {
			matched++
		}
	}

	score := matched / float64(len(terms))
	if score > 1 {
		score = 1
	}
	return score
}

// tokenize lowercases and splits a query, dropping short stopword-like terms.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '?' || r == '!' || r == '\n' || r == '\t'
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// BuildContext renders ranked facts into a prompt section, truncated to the
// character budget. Facts are emitted in rank order; a fact that would
// overflow the budget is dropped along with everything after it.
func (idx *Index) BuildContext(facts []domain.GroundingFact, budget int) string {
	if len(facts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Relevant knowledge:\n")
	for _, f := range facts {
		line := fmt.Sprintf("- [%s] %s\n", f.Topic, f.Text)
		if sb.Len()+len(line) > budget {
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}
