package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// DecodeJSON reads a request body into v, rejecting unknown fields and
// trailing garbage.
func DecodeJSON(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("unexpected data after json body")
	}
	return nil
}

// ValidationDetails flattens validator errors into a field -> rule map
// suitable for an error response body.
func ValidationDetails(errs validator.ValidationErrors) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

func ParseLimitOffset(query url.Values, defaultLimit, maxLimit int64) (int64, int64, error) {
	limit := defaultLimit
	var offset int64

	if raw := query.Get("limit"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 1 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	if raw := query.Get("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
		offset = v
	}

	return limit, offset, nil
}
