package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/raoulx24/dir-archiver/internal/retention"
	"github.com/raoulx24/dir-archiver/internal/snapshot"
)

// ConfigurationError reports an invalid setting. It is always raised before
// any storage is touched.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CronParser is the schedule syntax accepted by the daemon: standard five
// fields plus descriptors such as "@hourly".
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var getValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})
	return v
})

// Validate checks struct constraints, then parses the retention pattern and
// the restore stamp.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return &ConfigurationError{Field: "config", Err: err}
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, describe(fe))
		}
		return &ConfigurationError{Field: fieldPath(verrs[0]), Err: errors.New(strings.Join(msgs, "; "))}
	}

	policy, err := retention.ParsePolicy(c.Retention.Pattern)
	if err != nil {
		return &ConfigurationError{Field: "retention.pattern", Err: err}
	}
	c.policy = policy

	c.restoreStamp = nil
	if c.Restore.Stamp != "" {
		ts, err := snapshot.ParseStamp(c.Restore.Stamp)
		if err != nil {
			return &ConfigurationError{Field: "restore.stamp", Err: err}
		}
		c.restoreStamp = &ts
	}

	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte", "gt", "lte", "min":
		return fmt.Sprintf("%s must be %s %s", field, fe.Tag(), fe.Param())
	case "cron":
		return fmt.Sprintf("%s is not a valid cron expression", field)
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}
