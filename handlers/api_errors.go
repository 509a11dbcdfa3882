package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// StatusMessage is the body the capture client understands for upload outcomes
// other than a recognized name.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidName     = "invalid_name"
	CodeInvalidImage    = "invalid_image"
	CodeNoFace          = "no_face"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUnauthorized    = "unauthorized"
	CodeInternal        = "internal_error"
	CodeUnavailable     = "unavailable"
	CodePayloadTooLarge = "payload_too_large"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	writeJSON(w, httpStatus, APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	})
}

func writeStatus(w http.ResponseWriter, httpStatus int, status, message string) {
	writeJSON(w, httpStatus, StatusMessage{Status: status, Message: message})
}
