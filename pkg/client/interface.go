package client

import (
	"context"

	"github.com/menta2k/image-redactor/pkg/types"
)

// VisionClient is a vision language model that can be asked to locate
// sensitive regions in an image
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	LocateRegions(ctx context.Context, model, prompt, imgB64 string) (*types.LocateResult, error)
}
