package job

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/cronsentinel/cronsentinel/internal/errs"
)

var (
	namePattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	schedulePattern = regexp.MustCompile(`^[0-9 */,-]+$`)
	envNamePattern  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// rawJobConfig is the shape decoded from config.yml, validated with
// struct tags via go-playground/validator.
type rawJobConfig struct {
	Schedule    string            `yaml:"schedule" validate:"required,croncharset"`
	Description string            `yaml:"description"`
	Timeout     *int              `yaml:"timeout" validate:"omitempty,min=1,max=3600"`
	Environment map[string]string `yaml:"environment" validate:"omitempty,dive,keys,envvarname,endkeys"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("croncharset", func(fl validator.FieldLevel) bool {
		return schedulePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("envvarname", func(fl validator.FieldLevel) bool {
		return envNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidateName checks a job's folder-derived identifier against the
// identifier regex: letters, digits, underscore, and hyphen only.
func ValidateName(name string) error {
	if name == "" || !namePattern.MatchString(name) {
		return errs.New(errs.Validation, "Invalid job name: %q", name)
	}
	return nil
}

// validateConfig enforces the required shape of a job's config: a
// present cron-charset schedule, an optional in-range timeout, and
// optional environment names matching the identifier-for-env-vars regex.
func validateConfig(cfg *rawJobConfig) error {
	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				// A failing map-key dive (Environment's "dive,keys,envvarname,endkeys")
				// reports the field as "Environment[key]", not "Environment", so
				// switch on the validation tag rather than the field name.
				switch fe.Tag() {
				case "envvarname":
					return errs.New(errs.Validation, "Invalid environment variable name")
				case "min", "max":
					return errs.New(errs.Validation, "timeout must be between 1 and 3600 seconds")
				case "required", "croncharset":
					return errs.New(errs.Validation, "schedule must be present and use only [0-9 */,-]")
				}
			}
		}
		return errs.Wrap(errs.Validation, err, "invalid job configuration")
	}
	return nil
}
