package ai

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	localTokenWeight = 0.7
	localNgramWeight = 0.3
	localNgramSize   = 3
)

var localTokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// localEmbedProvider hashes word tokens and character trigrams into a fixed
// number of buckets. It needs no network or model files and is fully
// deterministic, at the cost of only lexical similarity.
type localEmbedProvider struct{}

func (p *localEmbedProvider) Name() string {
	return "local"
}

func (p *localEmbedProvider) Embed(ctx context.Context, model string, text string, taskType string, dimension int) ([]float32, error) {
	vec := make([]float32, dimension)
	if dimension <= 0 {
		return vec, nil
	}
	for _, token := range localTokenRegex.FindAllString(strings.ToLower(text), -1) {
		vec[hashIndex(token, dimension)] += localTokenWeight
	}
	for _, gram := range trigrams(text) {
		vec[hashIndex(gram, dimension)] += localNgramWeight
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec, nil
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec, nil
}

func trigrams(text string) []string {
	var letters []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			letters = append(letters, r)
		}
	}
	if len(letters) < localNgramSize {
		return nil
	}
	grams := make([]string, 0, len(letters)-localNgramSize+1)
	for i := 0; i+localNgramSize <= len(letters); i++ {
		grams = append(grams, string(letters[i:i+localNgramSize]))
	}
	return grams
}

func hashIndex(s string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(n))
}

func init() {
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		return &localEmbedProvider{}, nil
	})
}
