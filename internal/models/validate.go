package models

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidDocument is returned when a document fails its schema check.
var ErrInvalidDocument = errors.New("invalid document")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks a document against its schema tags before it crosses the
// store boundary.
func Validate(doc any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(doc); err != nil {
		return fmt.Errorf("%w: %T: %v", ErrInvalidDocument, doc, err)
	}
	return nil
}
