//go:build !onnx

package main

import (
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
)

// newEmbedder returns the deterministic offline embedder. Build with
// -tags onnx for real sentence embeddings.
func newEmbedder() (embedding.Embedder, error) {
	return embedding.NewOfflineEmbedder(0), nil
}
