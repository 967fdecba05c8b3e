package app

import (
	"errors"
	"fmt"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsDomainCode reports whether err is a DomainError with the given code.
func IsDomainCode(err error, code string) bool {
	var derr *DomainError
	return errors.As(err, &derr) && derr.Code == code
}
