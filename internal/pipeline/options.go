package pipeline

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alfredjeanlab/odrlfrag/internal/model"
	"github.com/alfredjeanlab/odrlfrag/internal/policy"
)

// Options selects how one run behaves. Zero values pick the defaults:
// gateway strategy, template mode, threshold 3, no process-level policy.
type Options struct {
	Strategy  model.Strategy `json:"strategy" validate:"oneof=activity gateway hybrid"`
	Threshold int            `json:"threshold" validate:"gte=0,lte=1000"`
	Mode      model.Mode     `json:"mode" validate:"oneof=template llm"`
	// BPPolicy is the process-level directive: "none",
	// "generate:<template>" or "upload:<name>".
	BPPolicy string `json:"bp_policy"`
	// UploadedPolicy is the parsed rule set for upload directives.
	UploadedPolicy *model.BPPolicy `json:"-" validate:"-"`
	LLMTimeout     time.Duration   `json:"llm_timeout" validate:"gte=0"`
	// Reconstruct adds the recombined process-wide policy to the result.
	Reconstruct bool `json:"reconstruct"`
	// RoleHierarchy maps a parent role to the roles it includes.
	RoleHierarchy map[string][]string `json:"role_hierarchy" validate:"omitempty,dive,keys,required,endkeys,dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (o Options) withDefaults() Options {
	if o.Strategy == "" {
		o.Strategy = model.StrategyGateway
	}
	if o.Mode == "" {
		o.Mode = model.ModeTemplate
	}
	if o.LLMTimeout == 0 {
		o.LLMTimeout = policy.DefaultTimeout
	}
	return o
}

// Validate checks o after defaults are applied. The first failing field is
// returned as a *model.ConfigurationError.
func (o Options) Validate() error {
	return checkOptions(o.withDefaults())
}

func checkOptions(o Options) error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &model.ConfigurationError{Field: "options", Reason: err.Error()}
	}
	fe := verrs[0]
	return &model.ConfigurationError{
		Field:  fe.Field(),
		Value:  fmt.Sprint(fe.Value()),
		Reason: reason(fe),
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "required":
		return "must not be empty"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}
