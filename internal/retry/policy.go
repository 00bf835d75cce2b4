package retry

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// Policy decides which responses and transport errors are worth retrying.
type Policy struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	statusCodes    []int
}

// NewDefaultPolicy retries gateway errors, connect failures, and the
// retriable 4xx set. Plain 5xx responses are not retried by default.
func NewDefaultPolicy() *Policy {
	return &Policy{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
	}
}

// ParsePolicy builds a Policy from a comma-separated condition list:
// "5xx", "gateway-error", "connect-failure", "retriable-4xx", or a literal
// status code.
func ParsePolicy(s string) (*Policy, error) {
	p := &Policy{}
	for _, condition := range strings.Split(s, ",") {
		switch condition {
		case "5xx":
			p.serverError = true
		case "gateway-error":
			p.gatewayError = true
		case "connect-failure":
			p.connectFailure = true
		case "retriable-4xx":
			p.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(condition)
			if err != nil {
				return nil, xerrors.Errorf("invalid retry condition: %s", condition)
			}
			p.statusCodes = append(p.statusCodes, statusCode)
		}
	}
	return p, nil
}

func (p *Policy) CheckResponse(response *http.Response) bool {
	if (p.serverError && response.StatusCode >= 500 && response.StatusCode < 600) ||
		(p.gatewayError && response.StatusCode >= 502 && response.StatusCode < 505) ||
		(p.retriable4xx && response.StatusCode == http.StatusConflict) {
		return true
	}

	for _, statusCode := range p.statusCodes {
		if statusCode == response.StatusCode {
			return true
		}
	}

	return false
}

func (p *Policy) CheckError(err error) bool {
	type temporary interface{ Temporary() bool }
	var terr temporary
	if (errors.As(err, &terr) && terr.Temporary()) || errors.Is(err, io.EOF) {
		return p.connectFailure || p.serverError
	}
	return false
}
