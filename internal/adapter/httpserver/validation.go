package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-calculator/internal/domain"
)

// calculateRequest is the body of POST /calculate.
type calculateRequest struct {
	Image string `json:"image" validate:"required"`
}

// calculateTextRequest is the body of POST /calculate-text.
type calculateTextRequest struct {
	Question string `json:"question" validate:"required"`
}

// requiredMessages maps a missing field to the message clients see.
var requiredMessages = map[string]string{
	"Image":    "No image provided.",
	"Question": "No question provided.",
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeRequest reads a JSON body capped at maxBytes into dst and validates it.
func decodeRequest(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body exceeds %d bytes", domain.InvalidInput("Request body too large."), tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", domain.InvalidInput("Invalid JSON body."), err)
	}
	if err := getValidator().Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			for _, fe := range ve {
				if msg, ok := requiredMessages[fe.Field()]; ok && fe.Tag() == "required" {
					return domain.InvalidInput(msg)
				}
			}
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}
