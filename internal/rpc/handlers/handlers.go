package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type Method string
type Path string

var (
	HTTP_GET  Method = "GET"
	HTTP_POST Method = "POST"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type MethodHandlers map[Path]map[Method]func(r *http.Request) (any, error)

// SetupHandlers registers every path on mux. Handler errors, whether bad input
// or upstream failure, are answered with 400 and an ErrorResponse.
func SetupHandlers(mux *http.ServeMux, handlers MethodHandlers) {
	for path, methodHandlers := range handlers {
		mux.HandleFunc(string(path), func(w http.ResponseWriter, r *http.Request) {
			handler, ok := methodHandlers[Method(r.Method)]
			if !ok {
				writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method Not Allowed"})
				return
			}
			resp, err := handler(r)
			if err != nil {
				zap.L().Error("failed to handle request",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
			if resp == nil {
				w.Header().Set("Content-Type", "application/json")
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}
