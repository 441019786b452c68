package shared

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator reporting fields by their json name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate runs struct validation and converts failures into a ValidationError
// with French messages.
func Validate(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := FieldErrors{}
	for _, fe := range verrs {
		fields.Add(fieldPath(fe), messageFor(fe))
	}
	return fields.Err()
}

// fieldPath drops the root struct name: "CreateQuoteRequest.items[0].name" → "items[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "Ce champ est obligatoire"
	case "email":
		return "Adresse e-mail invalide"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Au moins %s caractères", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Au moins %s élément(s)", fe.Param())
		}
		return fmt.Sprintf("Doit être supérieur ou égal à %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Au plus %s caractères", fe.Param())
		}
		return fmt.Sprintf("Doit être inférieur ou égal à %s", fe.Param())
	case "gt":
		return fmt.Sprintf("Doit être supérieur à %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Doit être supérieur ou égal à %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Doit être inférieur ou égal à %s", fe.Param())
	case "oneof":
		return "Valeur non autorisée"
	case "eqfield":
		return "Les valeurs ne correspondent pas"
	case "datetime":
		return "Date invalide"
	case "numeric":
		return "Nombre invalide"
	default:
		return "Valeur invalide"
	}
}
