package graphstore

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"github.com/surgebase/porter2"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// Two full-text indexes are maintained, scoped to what each actually
// covers (DESIGN.md records the decision) — symbol_index over
// FUNCTION/CLASS/FILE name and content fields, docs_index over
// SECTION/DOCUMENT content and heading.
const (
	symbolIndexName = "symbol_index"
	docsIndexName   = "docs_index"
)

var symbolIndexLabels = []types.Label{types.LabelFunction, types.LabelClass, types.LabelFile}
var docsIndexLabels = []types.Label{types.LabelSection, types.LabelDocument}

// ProvisionResult is the outcome of one EnsureBM25Index call: which indices
// were actually created versus already present, or the error that stopped
// provisioning partway through.
type ProvisionResult struct {
	Created       []string
	AlreadyExists []string
	Error         error
}

// EnsureBM25Index idempotently creates whichever native full-text index is
// missing. When the backend doesn't support full-text indexes at all (an
// older or differently-configured store), the caller is expected to fall
// back to the lexical path instead of treating this as fatal. Knowing the
// index exists is not the same as having served a query from it —
// BM25IndexKnownToExist only records provisioning success; callers track
// their own native-vs-fallback mode per query.
func (c *Client) EnsureBM25Index(ctx context.Context) ProvisionResult {
	result := ProvisionResult{}
	indexSpecs := []struct {
		name   string
		labels []types.Label
		fields []string
	}{
		{symbolIndexName, symbolIndexLabels, []string{"name", "relativePath", "content"}},
		{docsIndexName, docsIndexLabels, []string{"heading", "content", "title"}},
	}

	for _, spec := range indexSpecs {
		created, err := c.ensureIndex(ctx, spec.name, spec.labels, spec.fields)
		if err != nil {
			result.Error = err
			return result
		}
		if created {
			result.Created = append(result.Created, spec.name)
		} else {
			result.AlreadyExists = append(result.AlreadyExists, spec.name)
		}
	}

	c.mu.Lock()
	c.bm25IndexKnownToExist = true
	c.mu.Unlock()
	return result
}

// BM25IndexKnownToExist reports whether a prior EnsureBM25Index call
// provisioned both indices successfully.
func (c *Client) BM25IndexKnownToExist() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bm25IndexKnownToExist
}

func (c *Client) ensureIndex(ctx context.Context, name string, labels []types.Label, fields []string) (created bool, err error) {
	exists, err := c.indexExists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	labelStrs := make([]string, len(labels))
	for i, l := range labels {
		labelStrs[i] = string(l)
	}

	query := "CREATE FULLTEXT INDEX " + name + " IF NOT EXISTS FOR (n:" +
		strings.Join(labelStrs, "|") + ") ON EACH [n." + strings.Join(fields, ", n.") + "]"

	if result := c.ExecuteQuery(ctx, types.Statement{Query: query}); result.Error != nil {
		return false, result.Error
	}
	return true, nil
}

func (c *Client) indexExists(ctx context.Context, name string) (bool, error) {
	result := c.ExecuteQuery(ctx, types.Statement{
		Query:  "SHOW INDEXES YIELD name WHERE name = $name RETURN name",
		Params: map[string]any{"name": name},
	})
	if result.Error != nil {
		return false, result.Error
	}
	return len(result.Rows) > 0, nil
}

// LexicalScorer is the native-BM25-unavailable fallback: a small in-process
// BM25 implementation over porter2-stemmed tokens.
type LexicalScorer struct {
	k1, b      float64
	docLens    map[string]int
	avgDocLen  float64
	postings   map[string]map[string]int // term -> docID -> freq
	totalDocs  int
}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{
		k1:       1.2,
		b:        0.75,
		docLens:  make(map[string]int),
		postings: make(map[string]map[string]int),
	}
}

// Index tokenizes and stems text, recording term frequencies for docID.
func (ls *LexicalScorer) Index(docID, text string) {
	terms := tokenizeAndStem(text)
	ls.docLens[docID] = len(terms)
	ls.totalDocs++

	freq := make(map[string]int)
	for _, term := range terms {
		freq[term]++
	}
	for term, f := range freq {
		if ls.postings[term] == nil {
			ls.postings[term] = make(map[string]int)
		}
		ls.postings[term][docID] = f
	}

	total := 0
	for _, l := range ls.docLens {
		total += l
	}
	ls.avgDocLen = float64(total) / float64(len(ls.docLens))
}

// fuzzyMatchThreshold is the minimum Jaro-Winkler similarity a query term
// must have with a vocabulary term to stand in for an exact-match miss.
const fuzzyMatchThreshold = 0.80

// Score returns BM25 scores for every document containing at least one
// query term, highest first is the caller's responsibility (retriever
// sorts after fusing with other signals). A query term with no exact
// postings falls back to the closest vocabulary term by Jaro-Winkler
// similarity, so a typo'd symbol name still surfaces its match.
func (ls *LexicalScorer) Score(query string) map[string]float64 {
	queryTerms := tokenizeAndStem(query)
	scores := make(map[string]float64)

	for _, term := range queryTerms {
		docs, ok := ls.postings[term]
		if !ok {
			if fuzzy, fuzzyOk := ls.closestTerm(term); fuzzyOk {
				docs, ok = ls.postings[fuzzy], true
			}
		}
		if !ok {
			continue
		}
		idf := math.Log(1 + (float64(ls.totalDocs)-float64(len(docs))+0.5)/(float64(len(docs))+0.5))

		for docID, freq := range docs {
			docLen := float64(ls.docLens[docID])
			denom := float64(freq) + ls.k1*(1-ls.b+ls.b*docLen/ls.avgDocLen)
			scores[docID] += idf * (float64(freq) * (ls.k1 + 1)) / denom
		}
	}

	return scores
}

// closestTerm finds the vocabulary term most similar to term by
// Jaro-Winkler distance, accepting it only above fuzzyMatchThreshold.
func (ls *LexicalScorer) closestTerm(term string) (string, bool) {
	best, bestScore := "", float32(0)
	for vocab := range ls.postings {
		score, err := edlib.StringsSimilarity(term, vocab, edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			best, bestScore = vocab, score
		}
	}
	if bestScore >= fuzzyMatchThreshold {
		return best, true
	}
	return "", false
}

func tokenizeAndStem(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		terms = append(terms, porter2.Stem(f))
	}
	return terms
}
