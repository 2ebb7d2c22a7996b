package systems

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	// MaxNameBytes keeps encoded callback actions inside Telegram's 64-byte limit.
	MaxNameBytes = 40
	// MaxDescriptionRunes bounds the stored description.
	MaxDescriptionRunes = 1024
)

func nameRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("name is required"),
		validation.Length(1, MaxNameBytes).Error("name must be at most 40 bytes"),
		validation.By(printable),
	}
}

func descriptionRules() []validation.Rule {
	return []validation.Rule{
		validation.Required.Error("description is required"),
		validation.RuneLength(1, MaxDescriptionRunes).Error("description must be at most 1024 characters"),
	}
}

// ValidateName checks a trimmed system name.
func ValidateName(name string) error {
	return validation.Validate(strings.TrimSpace(name), nameRules()...)
}

// ValidateDescription checks a trimmed description.
func ValidateDescription(desc string) error {
	return validation.Validate(strings.TrimSpace(desc), descriptionRules()...)
}

// Validate checks every user-supplied field of the record.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, nameRules()...),
		validation.Field(&r.Description, descriptionRules()...),
		validation.Field(&r.File, validation.By(validFile)),
	)
}

func printable(value any) error {
	s, _ := value.(string)
	for _, r := range s {
		if unicode.IsControl(r) {
			return errors.New("name must not contain control characters")
		}
	}
	return nil
}

func validFile(value any) error {
	f, _ := value.(*File)
	if f == nil {
		return nil
	}
	if strings.TrimSpace(f.URL) == "" {
		return errors.New("file reference is empty")
	}
	if f.SizeBytes < 0 {
		return errors.New("file size is negative")
	}
	return nil
}
