package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	actionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
	cronParser      = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(yamlTagName)
		_ = v.RegisterValidation("action_id", func(fl validator.FieldLevel) bool {
			return actionIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Validate checks the config for:
//   - Schema violations (required fields, enum values, negative durations)
//   - Duplicate action ids
//   - depends_on targets that are not declared, or that point at the action itself
//   - Unparseable cron expressions
//
// Dependency cycles are reported by dag.Build.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	var errs []string

	if err := validatorInstance().Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return fmt.Errorf("config: %w", err)
		}
		for _, fe := range ves {
			errs = append(errs, fmt.Sprintf("%s failed validation for tag '%s'", yamlishFieldName(fe), fe.Tag()))
		}
	}

	ids := make(map[string]int, len(cfg.Actions))
	for i, a := range cfg.Actions {
		if a.ID == "" {
			continue
		}
		if prev, ok := ids[a.ID]; ok {
			errs = append(errs, fmt.Sprintf("duplicate action id %q (actions[%d] and actions[%d])", a.ID, prev, i))
			continue
		}
		ids[a.ID] = i
	}

	for _, a := range cfg.Actions {
		for _, dep := range a.DependsOn {
			if dep == a.ID {
				errs = append(errs, fmt.Sprintf("action %s: depends on itself", a.ID))
				continue
			}
			if _, ok := ids[dep]; !ok && dep != "" {
				errs = append(errs, fmt.Sprintf("action %s: depends_on %q is not declared", a.ID, dep))
			}
		}
		if a.Schedule != nil && strings.TrimSpace(a.Schedule.Cron) != "" {
			if _, err := cronParser.Parse(strings.TrimSpace(a.Schedule.Cron)); err != nil {
				errs = append(errs, fmt.Sprintf("action %s: invalid cron %q: %v", a.ID, a.Schedule.Cron, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// yamlTagName reports fields by their YAML key so errors point at the file.
func yamlTagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// yamlishFieldName drops the root type from the namespace:
// "Config.engine.max_concurrency" becomes "engine.max_concurrency".
func yamlishFieldName(fe validator.FieldError) string {
	_, rest, ok := strings.Cut(fe.Namespace(), ".")
	if !ok {
		return fe.Field()
	}
	return rest
}
