package blogsync

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// validateStruct runs struct tag validation and reports failures as
// ErrInvalidArgument.
func validateStruct(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return invalidArgument("%v", err)
	}
	parts := make([]string, len(ve))
	for i, fe := range ve {
		if fe.Param() != "" {
			parts[i] = fe.Field() + " failed on " + fe.Tag() + "=" + fe.Param()
		} else {
			parts[i] = fe.Field() + " failed on " + fe.Tag()
		}
	}
	return invalidArgument("%s", strings.Join(parts, "; "))
}
