package bottles

import (
	"errors"
	"log"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/loopfz/gadgeto/tonic"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
)

// ErrorHook renders every handler error as a problem document.
// Register it once with tonic.SetErrorHook before serving.
func ErrorHook(c *gin.Context, err error) (int, interface{}) {
	c.Header("Content-Type", "application/problem+json")

	// 1) bind/validate errors → 400
	var be tonic.BindError
	if errors.As(err, &be) || isValidationErr(err) {
		apiErr := problem.NewBadRequest("Invalid input", invalidParamsFromBinding(err)...)
		return apiErr.Status, apiErr
	}

	// 2) problem documents pass through
	var apiErr problem.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, apiErr
	}

	// 3) anything else is a 500 without details
	log.Printf("[http] %s %s: %v", c.Request.Method, c.FullPath(), err)
	internal := problem.NewInternalServerError("Server error")
	return internal.Status, internal
}

func invalidParamsFromBinding(err error) []problem.InvalidParam {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []problem.InvalidParam{{Name: "body", Reason: err.Error()}}
	}

	out := make([]problem.InvalidParam, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, problem.InvalidParam{
			Name:   lowerFirst(fe.Field()),
			Reason: humanReason(fe),
		})
	}
	return out
}

func humanReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "is too long"
	default:
		return fe.Error()
	}
}

func isValidationErr(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
