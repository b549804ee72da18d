package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ecoshield360/ecoshield/internal/api/middleware"
	"github.com/ecoshield360/ecoshield/internal/api/response"
	"github.com/ecoshield360/ecoshield/internal/validation"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// decodeJSON reads the request body into dst. On failure it writes a 400
// problem and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// decodeAndValidate decodes dst and checks its validate tags. On failure it
// writes a 400 problem listing the offending fields and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if fields := validation.Validate(dst); len(fields) > 0 {
		response.BadRequest(w, r, "validation error", fields)
		return false
	}
	return true
}
