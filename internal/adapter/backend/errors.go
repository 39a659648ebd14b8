package backend

import (
	"fmt"
	"net/http"

	"lawggle-ai/internal/domain"
)

// codeSentinels maps the gateway's error codes back onto domain sentinels.
var codeSentinels = map[domain.ErrorCode]error{
	domain.CodeNotFound:       domain.ErrNotFound,
	domain.CodeThreadNotFound: domain.ErrNotFound,
	domain.CodeFileNotFound:   domain.ErrNotFound,
	domain.CodeRunNotFound:    domain.ErrNotFound,
	domain.CodeInvalidInput:   domain.ErrInvalidInput,
	domain.CodePayloadTooBig:  domain.ErrPayloadTooBig,
	domain.CodeGatewayAuth:    domain.ErrGatewayAuth,
	domain.CodeAuthInvalid:    domain.ErrAuthInvalid,
	domain.CodeRateLimit:      domain.ErrRateLimit,
	domain.CodeCircuitOpen:    domain.ErrCircuitOpen,
	domain.CodeTimeout:        domain.ErrTimeout,
	domain.CodeStreamFailed:   domain.ErrStreamFailed,
}

// remoteError rebuilds a gateway failure as a domain error. The code wins
// over the HTTP status when both are known.
func remoteError(op string, status int, code domain.ErrorCode, msg string) error {
	sentinel, ok := codeSentinels[code]
	if !ok {
		sentinel = statusSentinel(status)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return domain.NewDomainError(op, fmt.Errorf("%w: %s", sentinel, msg), "")
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusBadRequest:
		return domain.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrAuthInvalid
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusRequestEntityTooLarge:
		return domain.ErrPayloadTooBig
	case http.StatusTooManyRequests:
		return domain.ErrRateLimit
	case http.StatusServiceUnavailable:
		return domain.ErrCircuitOpen
	case http.StatusGatewayTimeout:
		return domain.ErrTimeout
	default:
		return domain.ErrProviderError
	}
}
