package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"weft/internal/backend"
	"weft/internal/services"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			return jsonName(field.Tag.Get("json"), field.Name)
		})
	})
	return validate
}

// DecodeConfig overlays the job configuration onto out, which callers
// pre-populate with defaults, then validates out's `validate` tags. Both
// failures are configuration errors and never retried.
func DecodeConfig(job *backend.Job, out any) error {
	if job != nil && len(job.Configuration) > 0 {
		data, err := json.Marshal(job.Configuration)
		if err != nil {
			return services.Wrap(services.ErrConfiguration, "activity", "decode config", "encode configuration", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return services.Wrap(services.ErrConfiguration, "activity", "decode config", "", err)
		}
	}
	if err := structValidator().Struct(out); err != nil {
		return services.Wrap(services.ErrConfiguration, "activity", "validate config", describe(err), nil)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func jsonName(tag, fallback string) string {
	name, _, _ := strings.Cut(tag, ",")
	switch name {
	case "-":
		return ""
	case "":
		return fallback
	default:
		return name
	}
}
