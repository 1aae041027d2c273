package render

import "errors"

var (
	ErrStyleNotFound        = errors.New("style not found")
	ErrContentNotFound      = errors.New("content not found")
	ErrObjectNotFound       = errors.New("object not found")
	ErrLookup               = errors.New("content lookup failed")
	ErrStream               = errors.New("source stream failed")
	ErrTransform            = errors.New("transform failed")
	ErrDependenciesNotReady = errors.New("dependencies not ready")
	ErrAlreadyBound         = errors.New("dependency already bound")
)
