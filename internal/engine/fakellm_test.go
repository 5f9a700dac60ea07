package engine

import (
	"context"
	"encoding/json"
)

// fakeLLM is a scriptable providers.LLM: CompleteStructured unmarshals a
// queued JSON response into out, in call order, looping on the last one once
// exhausted. Complete returns queued plain strings the same way.
type fakeLLM struct {
	structuredResponses []string
	completeResponses   []string
	structuredCalls     int
	completeCalls       int
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	if len(f.completeResponses) == 0 {
		return "", nil
	}
	i := f.completeCalls
	if i >= len(f.completeResponses) {
		i = len(f.completeResponses) - 1
	}
	f.completeCalls++
	return f.completeResponses[i], nil
}

func (f *fakeLLM) CompleteStructured(ctx context.Context, prompt string, schema any, out interface{}) error {
	if len(f.structuredResponses) == 0 {
		return nil
	}
	i := f.structuredCalls
	if i >= len(f.structuredResponses) {
		i = len(f.structuredResponses) - 1
	}
	f.structuredCalls++
	return json.Unmarshal([]byte(f.structuredResponses[i]), out)
}

func (f *fakeLLM) Model() string { return "fake/test-model" }

// fakeEmbedder returns the vector mapped to each text in vectors, or, for a
// text with no entry, a dim-length vector whose first element is 1.
type fakeEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
			continue
		}
		v := make([]float32, f.dim)
		if f.dim > 0 {
			v[0] = 1
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Model() string { return "fake/test" }
