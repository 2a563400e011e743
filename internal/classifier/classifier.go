// Package classifier implements the Classifier (C6): a TF-IDF + multinomial
// logistic-regression department predictor. Training happens offline; this
// package only loads a serialized artifact and runs inference. If the
// artifact is absent, callers degrade to keyword-only routing (spec §4.6,
// §7 ClassifierMissing) — see router.NoopPredictor for where that fallback lives.
package classifier

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Prediction is the result of one classification call.
type Prediction struct {
	Department    string
	Confidence    float64
	Probabilities map[string]float64
}

// Artifact is the serialized shape of a trained pipeline: a TF-IDF
// vocabulary with IDF weights, and one logistic-regression weight vector
// plus bias per class. This mirrors what a real training job (spec §4.6:
// "produces accuracy, macro precision/recall/F1... logged to an experiment
// tracker") would emit as its deployable artifact.
type Artifact struct {
	Vocabulary map[string]int `json:"vocabulary"` // term -> feature index
	IDF        []float64      `json:"idf"`         // per feature index
	Classes    []string       `json:"classes"`
	Weights    [][]float64    `json:"weights"` // [class][feature]
	Bias       []float64      `json:"bias"`    // [class]
	NGramMax   int            `json:"ngram_max"`
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// englishStopwords is a small fixed stoplist; the spec calls for "English
// stopwords" without naming a corpus, so a compact closed list is used
// rather than pulling in a full NLP stopword package for five words' worth of benefit.
var englishStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "is": {}, "in": {}, "for": {},
}

func tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if _, stop := englishStopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ngrams produces unigrams and bigrams (spec §4.6: "TF-IDF (1-2 grams)").
func ngrams(tokens []string, maxN int) []string {
	if maxN < 1 {
		maxN = 1
	}
	out := make([]string, 0, len(tokens)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			out = append(out, strings.Join(tokens[i:i+n], " "))
		}
	}
	return out
}

// Classifier runs TF-IDF + logistic-regression inference against a loaded artifact.
type Classifier struct {
	artifact *Artifact
}

// Load reads a JSON-serialized Artifact from disk. A missing file is
// returned as a plain *os.PathError so callers can distinguish "no model"
// from a malformed one.
func Load(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse classifier artifact %s: %w", path, err)
	}
	if artifact.NGramMax == 0 {
		artifact.NGramMax = 2
	}
	if len(artifact.Classes) != len(artifact.Weights) || len(artifact.Classes) != len(artifact.Bias) {
		return nil, fmt.Errorf("malformed classifier artifact: class/weight/bias length mismatch")
	}
	return &Classifier{artifact: &artifact}, nil
}

func (c *Classifier) vectorize(text string) map[int]float64 {
	terms := ngrams(tokenize(text), c.artifact.NGramMax)

	tf := make(map[int]float64)
	for _, term := range terms {
		if idx, ok := c.artifact.Vocabulary[term]; ok {
			tf[idx]++
		}
	}
	for idx, count := range tf {
		idf := 1.0
		if idx < len(c.artifact.IDF) {
			idf = c.artifact.IDF[idx]
		}
		tf[idx] = count * idf
	}
	return tf
}

// Predict classifies text into one of the artifact's classes (spec §4.6 contract).
func (c *Classifier) Predict(text string) Prediction {
	features := c.vectorize(text)

	scores := make([]float64, len(c.artifact.Classes))
	for ci, weights := range c.artifact.Weights {
		score := c.artifact.Bias[ci]
		for idx, val := range features {
			if idx < len(weights) {
				score += weights[idx] * val
			}
		}
		scores[ci] = score
	}

	probs := softmax(scores)

	probabilities := make(map[string]float64, len(c.artifact.Classes))
	bestIdx := 0
	for i, class := range c.artifact.Classes {
		probabilities[class] = probs[i]
		if probs[i] > probs[bestIdx] {
			bestIdx = i
		}
	}

	return Prediction{
		Department:    c.artifact.Classes[bestIdx],
		Confidence:    probs[bestIdx],
		Probabilities: probabilities,
	}
}

// TopK returns the k most likely departments, descending by probability.
func (c *Classifier) TopK(text string, k int) []Prediction {
	pred := c.Predict(text)
	type pair struct {
		dept string
		prob float64
	}
	pairs := make([]pair, 0, len(pred.Probabilities))
	for dept, prob := range pred.Probabilities {
		pairs = append(pairs, pair{dept, prob})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].prob > pairs[j].prob })
	if k > len(pairs) {
		k = len(pairs)
	}
	out := make([]Prediction, k)
	for i := 0; i < k; i++ {
		out[i] = Prediction{Department: pairs[i].dept, Confidence: pairs[i].prob, Probabilities: pred.Probabilities}
	}
	return out
}

func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
