package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var (
	v *validator.Validate

	reZip   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	reTime  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	reDate  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reState = regexp.MustCompile(`^[A-Z]{2}$`)
)

// USStates includes DC and the territories served by a federal district court.
var USStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true, "CT": true,
	"DE": true, "DC": true, "FL": true, "GA": true, "HI": true, "ID": true, "IL": true,
	"IN": true, "IA": true, "KS": true, "KY": true, "LA": true, "ME": true, "MD": true,
	"MA": true, "MI": true, "MN": true, "MS": true, "MO": true, "MT": true, "NE": true,
	"NV": true, "NH": true, "NJ": true, "NM": true, "NY": true, "NC": true, "ND": true,
	"OH": true, "OK": true, "OR": true, "PA": true, "RI": true, "SC": true, "SD": true,
	"TN": true, "TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "PR": true, "GU": true, "VI": true, "MP": true,
}

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("usstate", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(strings.ToUpper(fl.Field().String()))
		if val == "" { // let omitempty/required handle empty
			return true
		}
		return reState.MatchString(val) && USStates[val]
	})

	_ = v.RegisterValidation("zip5", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return reZip.MatchString(val)
	})

	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return reTime.MatchString(val)
	})

	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		return reDate.MatchString(val)
	})

	_ = v.RegisterValidation("sectiontype", func(fl validator.FieldLevel) bool {
		return models.SectionType(fl.Field().String()).Valid()
	})

	_ = v.RegisterValidation("rightcategory", func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		for _, c := range models.RightCategories {
			if c == val {
				return true
			}
		}
		return false
	})

	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" {
			return true
		}
		_, err := ParseMoney(val)
		return err == nil
	})
}

// Validate returns map[field][]messages (Laravel-like)
func Validate(s any) (map[string][]string, error) {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		out := make(map[string][]string)
		for _, e := range ve {
			field := e.Field() // already mapped from json tag

			switch e.Tag() {
			case "required", "required_if":
				out[field] = append(out[field], "This field is required")

			case "email":
				out[field] = append(out[field], "Invalid email format")

			case "min":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s", e.Param()))
				}

			case "max":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s", e.Param()))
				}

			case "oneof":
				out[field] = append(out[field], "Value is not allowed")

			case "uuid", "uuid4":
				out[field] = append(out[field], "Invalid UUID format")

			case "gte":
				out[field] = append(out[field], fmt.Sprintf("Must be greater than or equal to %s", e.Param()))

			case "lte":
				out[field] = append(out[field], fmt.Sprintf("Must be less than or equal to %s", e.Param()))

			case "url":
				out[field] = append(out[field], "Invalid URL")

			case "eq":
				out[field] = append(out[field], fmt.Sprintf("Must be %s", e.Param()))

			case "usstate":
				out[field] = append(out[field], "Invalid state code (use the two-letter postal code, e.g. “TX”)")

			case "zip5":
				out[field] = append(out[field], "Invalid ZIP code")

			case "hhmm":
				out[field] = append(out[field], "Invalid time (use HH:MM)")

			case "isodate":
				out[field] = append(out[field], "Invalid date (use YYYY-MM-DD)")

			case "sectiontype":
				out[field] = append(out[field], "Unknown section")

			case "rightcategory":
				out[field] = append(out[field], "Unknown right category")

			case "money":
				out[field] = append(out[field], "Invalid amount")

			default:
				// Fallback to original error text if we missed a tag
				out[field] = append(out[field], e.Error())
			}
		}
		return out, nil
	}
	return nil, nil
}
