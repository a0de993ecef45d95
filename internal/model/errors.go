package model

import "fmt"

// ValidationError — ошибка входных данных, которая решается без обращения к бэкенду
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
