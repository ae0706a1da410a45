package ai

import "github.com/kiranshivaraju/convointel/internal/ai/aihttp"

var (
	ErrProviderUnavailable = aihttp.ErrProviderUnavailable
	ErrInferenceTimeout    = aihttp.ErrInferenceTimeout
	ErrInvalidResponse     = aihttp.ErrInvalidResponse
	ErrRequestRejected     = aihttp.ErrRequestRejected
)
