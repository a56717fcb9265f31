package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mailclean/saas-backend/auth/gotrue"
)

// Kinds of failure. Every error returned by the Service is an *Error that
// matches one of them with errors.Is.
var (
	ErrNotConfigured      = errors.New("auth provider not configured")
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrConnectivity       = errors.New("auth provider unreachable")
	ErrTimeout            = errors.New("auth provider timeout")
	ErrRejected           = errors.New("request rejected by auth provider")
	ErrProvider           = errors.New("auth provider failure")
)

// User facing messages.
const (
	MsgNotConfigured      = "Autenticação não configurada. Configure as variáveis de ambiente."
	MsgInvalidAPIKey      = "Chave de API inválida. Verifique a configuração da autenticação."
	MsgMissingCredentials = "E-mail e senha são obrigatórios"
	MsgInvalidCredentials = "E-mail ou senha incorretos. Verifique suas credenciais."
	MsgEmailNotConfirmed  = "Confirme seu e-mail antes de fazer login. Verifique sua caixa de entrada."
	MsgTooManyRequests    = "Muitas tentativas de login. Aguarde alguns minutos e tente novamente."
	MsgConnectivity       = "Erro de conectividade. Verifique sua conexão com a internet e tente novamente."
	MsgTimeout            = "Timeout: Operação demorou mais que o esperado"
	MsgProvider           = "Erro no serviço de autenticação. Tente novamente mais tarde."
)

// Error is a failure of an auth operation with its localized message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the kind and the cause, so errors.Is works with both.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports if the operation may succeed when repeated.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case ErrConnectivity, ErrTimeout, ErrProvider:
		return true
	default:
		return false
	}
}

func newError(kind error, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// translate turns a provider error into an *Error with a portuguese message.
// Provider messages are matched by substring since GoTrue versions differ in
// their error codes.
func translate(err error) *Error {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrTimeout, MsgTimeout, err)
	}
	var connErr *gotrue.ConnectionError
	if errors.As(err, &connErr) {
		return newError(ErrConnectivity, MsgConnectivity, err)
	}
	var apiErr *gotrue.APIError
	if !errors.As(err, &apiErr) {
		if strings.Contains(err.Error(), "fetch") {
			return newError(ErrConnectivity, MsgConnectivity, err)
		}
		return newError(ErrProvider, MsgProvider, err)
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == "invalid_credentials" || strings.Contains(msg, "invalid login credentials"):
		return newError(ErrInvalidCredentials, MsgInvalidCredentials, err)
	case apiErr.Code == "email_not_confirmed" || strings.Contains(msg, "email not confirmed"):
		return newError(ErrEmailNotConfirmed, MsgEmailNotConfirmed, err)
	case apiErr.StatusCode == http.StatusTooManyRequests || strings.Contains(msg, "too many requests"):
		return newError(ErrTooManyRequests, MsgTooManyRequests, err)
	case strings.Contains(msg, "invalid api key"):
		return newError(ErrNotConfigured, MsgInvalidAPIKey, err)
	case strings.Contains(msg, "fetch"):
		return newError(ErrConnectivity, MsgConnectivity, err)
	case apiErr.StatusCode < http.StatusInternalServerError:
		return newError(ErrRejected, apiErr.Message, err)
	default:
		return newError(ErrProvider, MsgProvider, err)
	}
}
