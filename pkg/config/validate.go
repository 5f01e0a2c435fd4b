package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config against its struct tags and cross-field invariants
// that validator tags cannot express (duplicate listener ports).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return translateValidationError(err)
	}

	seen := make(map[uint16]struct{}, len(cfg.Listeners))
	for _, l := range cfg.Listeners {
		if _, ok := seen[l.Port]; ok {
			return fmt.Errorf("duplicate listener port: %d", l.Port)
		}
		seen[l.Port] = struct{}{}
	}

	return nil
}

// translateValidationError turns validator field errors into a single
// human-readable message instead of the library's Go-struct-path format.
func translateValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
	}

	return fmt.Errorf("%s", strings.Join(messages, "; "))
}
