//go:build onnx

package main

import (
	"os"

	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding"
	"github.com/darshan161999/Intelligent-Character-Interaction-Engine/embedding/onnx"
)

// newEmbedder loads the ONNX sentence embedder. Model and tokenizer
// paths come from the environment.
func newEmbedder() (embedding.Embedder, error) {
	modelPath := os.Getenv("ONNX_MODEL_PATH")
	if modelPath == "" {
		modelPath = "models/all-MiniLM-L6-v2/model.onnx"
	}
	tokenizerPath := os.Getenv("ONNX_TOKENIZER_PATH")
	if tokenizerPath == "" {
		tokenizerPath = "models/all-MiniLM-L6-v2/tokenizer.json"
	}
	return onnx.New(onnx.Config{
		ModelPath:     modelPath,
		TokenizerPath: tokenizerPath,
		Dimensions:    384,
	})
}
