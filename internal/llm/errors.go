package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/sashabaranov/go-openai"
)

// ErrFatalAPI marks failures that retrying cannot fix: bad credentials,
// exhausted credit or quota.
var ErrFatalAPI = errors.New("fatal LLM API error")

var fatalPatterns = []string{
	"credit balance",
	"insufficient credit",
	"insufficient_quota",
	"quota exceeded",
	"billing",
	"payment required",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"authentication",
	"unauthorized",
	"access denied",
	"accessdenied",
	"401",
	"402",
	"403",
}

func isFatalStatus(code int) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return true
	}
	return false
}

// isFatalAPIError reports whether err is an auth, billing or quota failure.
// Rate limiting is transient and not fatal.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isFatalStatus(apiErr.HTTPStatusCode) {
		return true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isFatalStatus(reqErr.HTTPStatusCode) {
		return true
	}
	var denied *types.AccessDeniedException
	if errors.As(err, &denied) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range fatalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func wrapFatalError(err error) error {
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}
