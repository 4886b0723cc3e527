package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Field names in its errors are
// the toml keys users write, not Go field names.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}()

// Validate checks the top-level settings and the section of the selected
// backend. Sections of other backends may be incomplete. All errors are
// reported together.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, structErrors("", cfg)...)

	if section, ok := cfg.section(); ok {
		errs = append(errs, structErrors(cfg.Backend, section)...)
	}

	if cfg.PersistentLocation != "" && !filepath.IsAbs(cfg.PersistentLocation) {
		errs = append(errs, fmt.Errorf("persistent_location: must be absolute, got %q", cfg.PersistentLocation))
	}

	return errors.Join(errs...)
}

// section returns a pointer to the selected backend's settings.
func (c *Config) section() (any, bool) {
	switch c.Backend {
	case "native":
		return &c.Native, true
	case "ipfs":
		return &c.IPFS, true
	case "onedrive":
		return &c.OneDrive, true
	case "owncloud":
		return &c.OwnCloud, true
	case "s3":
		return &c.S3, true
	default:
		return nil, false
	}
}

// structErrors runs tag validation on v and converts failures into
// "table.key: rule" errors.
func structErrors(table string, v any) []error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []error{err}
	}

	errs := make([]error, 0, len(verrs))

	for _, fe := range verrs {
		// Namespace is "Config.logging.level"; drop the Go type name.
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		errs = append(errs, fmt.Errorf("%s: %s", joinKey(table, key), describe(fe)))
	}

	return errs
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "required_with":
		return "required when " + fe.Param() + " is set"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
