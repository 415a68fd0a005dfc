package carrier

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid    = errors.New("carrier config invalid")
	ErrAuthFailed       = errors.New("carrier auth failed")
	ErrValidationFailed = errors.New("carrier validation failed")
	ErrNotFound         = errors.New("carrier shipment not found")
	ErrNetwork          = errors.New("carrier network error")
)

// ResultLabel 将错误归类为指标标签
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuthFailed):
		return "auth_failed"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNetwork):
		return "network"
	default:
		return "error"
	}
}

func wrapf(base error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
