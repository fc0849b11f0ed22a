// Package validation checks user and post input before it reaches storage.
package validation

import (
	"github.com/feedgraph/apiserver/types"
	"github.com/go-playground/validator/v10"
)

const minLength = "required,min=5"

// Violation is a single field-level validation failure.
type Violation struct {
	Message string `json:"message"`
}

var validate = validator.New()

// User checks registration input and returns every violation found.
func User(input types.UserInput) []Violation {
	var violations []Violation
	if validate.Var(input.Email, "required,email") != nil {
		violations = append(violations, Violation{Message: "Invalid Email Id"})
	}
	if validate.Var(input.Password, minLength) != nil {
		violations = append(violations, Violation{Message: "Pwd is Too Short"})
	}
	return violations
}

// Post checks post input for create and update.
func Post(input types.PostInput) []Violation {
	var violations []Violation
	if validate.Var(input.Title, minLength) != nil {
		violations = append(violations, Violation{Message: "Title is Invalid"})
	}
	if validate.Var(input.Content, minLength) != nil {
		violations = append(violations, Violation{Message: "Content is Invalid"})
	}
	return violations
}
