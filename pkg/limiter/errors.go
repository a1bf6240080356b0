package limiter

import "errors"

var (
	// ErrInvalidConfig reports limiter parameters that can never admit a
	// call, such as a non-positive Count or Per.
	ErrInvalidConfig = errors.New("limiter: invalid configuration")

	// ErrKeyFormat reports a NameFormat that references a call argument the
	// caller did not supply.
	ErrKeyFormat = errors.New("limiter: key format")
)
