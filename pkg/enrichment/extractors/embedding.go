package extractors

import "math"

const (
	EmbeddingDimensions = 1536
	EmbeddingModel      = "simple-hash-v1"
	embeddingMaxChars   = 8000
)

type Embedding struct {
	Vector []float64 `json:"vector"`
	Model  string    `json:"model"`
}

// GenerateEmbedding folds character codes into a fixed-size vector and
// L2-normalizes it. It is a deterministic placeholder, not a semantic
// embedding; callers only rely on the text -> []float64 shape.
func GenerateEmbedding(text string) Embedding {
	chars := []rune(text)
	if len(chars) > embeddingMaxChars {
		chars = chars[:embeddingMaxChars]
	}

	vector := make([]float64, EmbeddingDimensions)
	for idx, ch := range chars {
		code := int(ch)
		vector[(code+idx)%EmbeddingDimensions] += float64(code%100) / 100
	}

	var sum float64
	for _, v := range vector {
		sum += v * v
	}
	if magnitude := math.Sqrt(sum); magnitude > 0 {
		for i := range vector {
			vector[i] /= magnitude
		}
	}
	return Embedding{Vector: vector, Model: EmbeddingModel}
}
