package model

import (
	"errors"
	"strings"
)

var (
	// ErrValidation возвращается, когда входные данные не прошли проверку.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если заказ, на который ссылается запрос, не найден.
	ErrNotFound = errors.New("not found")
)

// FieldError описывает проблему с одним полем запроса.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError содержит список полей, не прошедших проверку.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError собирает ошибку валидации из списка полей.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Missing возвращает ошибку для набора незаполненных обязательных полей.
func Missing(names ...string) *ValidationError {
	fields := make([]FieldError, 0, len(names))
	for _, n := range names {
		fields = append(fields, FieldError{Field: n, Reason: "required"})
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}

	var missing, other []string
	for _, f := range e.Fields {
		if f.Reason == "required" {
			missing = append(missing, f.Field)
			continue
		}
		other = append(other, f.Field+": "+f.Reason)
	}

	parts := make([]string, 0, 2)
	if len(missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(missing, ", "))
	}
	if len(other) > 0 {
		parts = append(parts, strings.Join(other, "; "))
	}
	return strings.Join(parts, "; ")
}

// Is позволяет сравнивать ошибку с ErrValidation через errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
