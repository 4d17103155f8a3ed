package gbvs

import "errors"

var (
	// ErrUnsupportedChannel is returned for a channel letter with no provider.
	ErrUnsupportedChannel = errors.New("gbvs: unsupported channel")
	// ErrNoLevels is returned when no pyramid level is configured or none fits the image.
	ErrNoLevels = errors.New("gbvs: empty level set")
	// ErrNormalizationType is returned for a normalization type outside {0, 1}.
	ErrNormalizationType = errors.New("gbvs: unknown normalization type")
	// ErrInvalidOptions covers the remaining configuration errors.
	ErrInvalidOptions = errors.New("gbvs: invalid options")
	// ErrEmptyImage is returned for a nil or zero-area input.
	ErrEmptyImage = errors.New("gbvs: empty image")
	// ErrGraphTooLarge is returned when a frame exceeds Options.MaxGraphNodes.
	ErrGraphTooLarge = errors.New("gbvs: graph too large")
	// ErrFeatureShape is returned when a provider's map does not match the raster.
	ErrFeatureShape = errors.New("gbvs: feature map shape mismatch")
)
