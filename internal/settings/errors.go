package settings

import "fmt"

var (
	ErrNotFound            = fmt.Errorf("setting not found")
	ErrTypeMismatch        = fmt.Errorf("setting value does not match its type")
	ErrConstraintViolation = fmt.Errorf("setting change violates a provider constraint")
	ErrPersistence         = fmt.Errorf("failed to persist setting")
)
