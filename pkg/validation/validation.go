package validation

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/pkg/pagination"
	"github.com/go-playground/validator/v10"
)

var (
	v    *validator.Validate
	once sync.Once
)

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v = validator.New()
		// Excel file path must have a supported extension
		_ = v.RegisterValidation("filepath_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			if s == "" {
				return false
			}
			return strings.HasSuffix(s, ".xlsx") || strings.HasSuffix(s, ".xlsm") || strings.HasSuffix(s, ".xltx") || strings.HasSuffix(s, ".xltm")
		})
		// Export destination: workbook or markdown
		_ = v.RegisterValidation("export_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			return strings.HasSuffix(s, ".xlsx") || strings.HasSuffix(s, ".md")
		})
		// Snapshot sheet names are dates in YYYY-MM-DD form
		_ = v.RegisterValidation("snapshot_date", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := time.Parse(time.DateOnly, s)
			return err == nil
		})
		// Cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // use omitempty with this tag
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// RegisterStringRule adds tag as a rule that passes empty values and any
// trimmed value ok accepts. Domain packages call it from init so the rule
// exists before the first validation.
func RegisterStringRule(tag string, ok func(string) bool) error {
	return Validator().RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s == "" || ok(s)
	})
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without":
		return fmt.Sprintf("VALIDATION: %s is required (or supply cursor)", field)
	case "filepath_ext":
		return "VALIDATION: path must be an Excel file (.xlsx, .xlsm, .xltx, .xltm)"
	case "export_ext":
		return "VALIDATION: output must end in .xlsx or .md"
	case "snapshot_date":
		return fmt.Sprintf("VALIDATION: %s must be a snapshot sheet name like 2025-10-06", field)
	case "category":
		return "VALIDATION: category must be one of exit_from_red, return_to_red, new_comer_to_red, missing_from_chi"
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination"
	case "oneof":
		return fmt.Sprintf("VALIDATION: %s must be one of [%s]", field, fe.Param())
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
