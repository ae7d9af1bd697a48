package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	ie "github.com/quayside/flotilla/pkg/errors"
)

var (
	errmap map[int][]error = map[int][]error{
		http.StatusBadRequest: {
			ie.ErrInvalidArg,
			ie.ErrMaxExceeded,
			ie.ErrInvalidImage,
		},
		http.StatusNotFound: {
			ie.ErrNotFound,
			ie.ErrImageNotFound,
		},
		http.StatusConflict: {
			ie.ErrTaskStateConflict,
			ie.ErrScheduleStateConflict,
			ie.ErrNodeStateConflict,
		},
		http.StatusLocked: {
			ie.ErrCannotAcquireLock,
		},
		http.StatusGatewayTimeout: {
			ie.ErrLockTimeout,
		},
	}

	// codemap translates internal errors into the stable codes callers match
	// on. Errors outside the map fall back to the handler's own code.
	codemap = []struct {
		err  error
		code string
	}{
		{ie.ErrInvalidImage, "fleet_rollout_invalid_image"},
		{ie.ErrImageNotFound, "fleet_rollout_image_not_found"},
		{ie.ErrCannotAcquireLock, "fleet_cannot_acquire_lock"},
		{ie.ErrLockTimeout, "fleet_lock_timeout"},
		{ie.ErrTaskStateConflict, "task_state_conflict"},
		{ie.ErrScheduleStateConflict, "schedule_state_conflict"},
	}
)

// mapError returns the http status code for a given error from flotilla, or
// http.StatusInternalServerError if the error is not recognised.
func mapError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for code, errs := range errmap {
		for _, e := range errs {
			if errors.Is(err, e) {
				return code
			}
		}
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError responds with a stable machine-matchable code plus the human
// readable message. fallback is the operation's own code, used when the error
// doesn't map to something more specific.
func writeError(w http.ResponseWriter, fallback string, err error) {
	code := fallback
	for _, m := range codemap {
		if errors.Is(err, m.err) {
			code = m.code
			break
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(mapError(err))
	json.NewEncoder(w).Encode(&errorResponse{Error: code, Message: err.Error()})
}

// unmarshalJson reads the body of a request and attempts to unmarshal it into the given object.
// This function writes an error to the writer if an error occurs, and returns the error.
func unmarshalJson(w http.ResponseWriter, r *http.Request, obj interface{}) error {
	if r.Body == nil {
		http.Error(w, "No body", http.StatusBadRequest)
		return fmt.Errorf("no body")
	}
	d := json.NewDecoder(r.Body)
	d.DisallowUnknownFields() // catch unwanted fields

	err := d.Decode(obj)
	if err != nil {
		// bad JSON or unrecognized json field
		http.Error(w, err.Error(), http.StatusBadRequest)
		return fmt.Errorf("bad json: %v", err)
	}

	return nil
}
