package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.vocdoni.io/dvote/log"
)

// Error is returned by the API handlers. It carries a unique error code, the
// HTTP status to reply with and, optionally, a user facing message that
// replaces the internal error text in the response body.
type Error struct {
	Err        error  // Original error
	Code       int    // Error code
	HTTPstatus int    // HTTP status code to return
	LogLevel   string // Log level for 4xx responses (defaults to "debug")
	Message    string // Localized message shown to the end user
	Data       any    // Optional data to include in the error response
}

// MarshalJSON returns a JSON containing the error text and the code. When a
// localized Message is set it is used as the error text and the internal
// error is moved to the detail field. Field HTTPstatus is ignored.
//
// Example output: {"error":"E-mail ou senha incorretos.","code":40101}
func (e Error) MarshalJSON() ([]byte, error) {
	body := struct {
		Error  string `json:"error"`
		Code   int    `json:"code"`
		Detail string `json:"detail,omitempty"`
		Data   any    `json:"data,omitempty"`
	}{
		Code: e.Code,
		Data: e.Data,
	}
	if e.Message != "" {
		body.Error = e.Message
		if e.Err != nil {
			body.Detail = e.Err.Error()
		}
	} else if e.Err != nil {
		body.Error = e.Err.Error()
	}
	return json.Marshal(body)
}

// Error returns the text of the wrapped error.
func (e Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap gives access to the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Write serializes the error as JSON and sends it with the error HTTP status.
// Server side errors are always logged, client errors only on debug.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if e.HTTPstatus >= http.StatusInternalServerError {
		log.Errorw(e.Err, fmt.Sprintf("API error response [%d] (code: %d)", e.HTTPstatus, e.Code))
	} else if log.Level() == log.LogLevelDebug {
		errMsg := fmt.Sprintf("API error response [%d]: %s (code: %d)", e.HTTPstatus, e.Error(), e.Code)
		switch e.LogLevel {
		case "info":
			log.Infow(errMsg)
		case "warn":
			log.Warnw(errMsg)
		default:
			log.Debugw(errMsg)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	_, _ = w.Write(msg)
}

// Withf returns a copy of Error with the Sprintf formatted string appended at
// the end of e.Err.
func (e Error) Withf(format string, args ...any) Error {
	return e.With(fmt.Sprintf(format, args...))
}

// With returns a copy of Error with the string appended at the end of e.Err.
func (e Error) With(s string) Error {
	c := e
	c.Err = fmt.Errorf("%w: %v", e.Err, s)
	return c
}

// WithErr returns a copy of Error with err.Error() appended at the end of e.Err.
func (e Error) WithErr(err error) Error {
	if err == nil {
		return e
	}
	return e.With(err.Error())
}

// WithMessage returns a copy of Error carrying the localized message that
// will be shown to the end user.
func (e Error) WithMessage(msg string) Error {
	c := e
	c.Message = msg
	return c
}

// WithLogLevel returns a copy of Error with the specified log level.
func (e Error) WithLogLevel(level string) Error {
	c := e
	c.LogLevel = level
	return c
}

func (e Error) WithData(data any) Error {
	c := e
	c.Data = data
	return c
}
