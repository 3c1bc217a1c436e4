package client

import (
	"context"

	"github.com/menta2k/ecorecycle/pkg/types"
)

// Classifier sends an encoded photo to a classification backend
type Classifier interface {
	Classify(ctx context.Context, filename string, image []byte) (*types.ClassificationResult, error)
}

// Prober is implemented by vision-model backends that can describe an image
// in free text, used to check that the model actually receives the photo.
type Prober interface {
	SimpleQuery(ctx context.Context, prompt string, image []byte) (string, error)
}
