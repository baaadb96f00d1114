package api

import (
	"encoding/json"
	"net/http"

	"uploadnest/internal/apperror"
)

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope 是所有错误响应的统一结构。
type errorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	ErrorCode  string `json:"errorCode"`
	Success    bool   `json:"success"`
}

// writeError 将任意错误归一化后写出，未识别的错误按 500 处理。
func writeError(w http.ResponseWriter, err error) {
	appErr := apperror.From(err)
	writeJSON(w, appErr.StatusCode, errorEnvelope{
		StatusCode: appErr.StatusCode,
		Message:    appErr.Message,
		ErrorCode:  string(appErr.Code),
		Success:    false,
	})
}
