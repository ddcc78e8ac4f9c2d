// ABOUTME: JSON envelope helpers and request decoding with struct validation
// ABOUTME: Every response carries status success or error

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/LyceenAiro/CelesteNet-UserTool/internal/auth"
)

// writeJSON writes a success envelope with the given extra fields.
func writeJSON(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "success"}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, map[string]any{"data": data})
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, nil)
}

var writeError = auth.WriteError

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	return s.check(dst)
}

// check validates a request struct and turns the first failure into a readable message.
func (s *Server) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		name := fe.Field()
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", name)
		case "email":
			return fmt.Errorf("%s is not a valid email", name)
		default:
			return fmt.Errorf("%s is invalid", name)
		}
	}
	return err
}

// newValidator reports fields by their json or query names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}
