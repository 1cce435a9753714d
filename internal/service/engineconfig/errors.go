package engineconfig

import "errors"

// Sentinel errors for the engine config service layer.
var (
	ErrNotFound  = errors.New("engine config not found")
	ErrMissingID = errors.New("client id is required")
)
