// Package responseformat writes REST responses as JSON or MessagePack.
package responseformat

import (
	"encoding/json"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct {
	cors bool
}

// NewFormatter creates a new response formatter. With cors set every
// response carries a permissive Access-Control-Allow-Origin header.
func NewFormatter(cors bool) *Formatter {
	return &Formatter{cors: cors}
}

// WriteResponse writes data with the given status code. JSON is the default
// format; MessagePack is used when format=msgpack is specified.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, status int, data any) error {
	if f.cors {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}

	if req.URL.Query().Get("format") == "msgpack" {
		return f.writeMsgPack(w, status, data)
	}
	return f.writeJSON(w, status, data)
}

// ErrorBody is the payload of every error response
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes an ErrorBody with the given status code
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	return f.WriteResponse(w, req, status, ErrorBody{Error: msg})
}

func (f *Formatter) writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

func (f *Formatter) writeMsgPack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/x-msgpack")
	w.WriteHeader(status)
	encoder := msgpack.NewEncoder(w)
	encoder.SetCustomStructTag("json") // Use json tags for MessagePack
	return encoder.Encode(data)
}
