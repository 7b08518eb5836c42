package api

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// TokenSource supplies the access token for outbound requests and refreshes
// it after the server rejected one.
type TokenSource interface {
	Access() string
	Refresh(ctx context.Context, stale string) (string, bool)
}

type retriedKey struct{}

// AuthTransport signs every request with the current access token. A 401 on a
// request that was not retried yet triggers one refresh and one resubmission.
type AuthTransport struct {
	Base   http.RoundTripper
	Tokens TokenSource
}

func (t *AuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	access := t.Tokens.Access()
	signed := req.Clone(req.Context())
	if signed.Header.Get(requestIDHeader) == "" {
		signed.Header.Set(requestIDHeader, uuid.NewString())
	}
	if access != "" {
		signed.Header.Set("Authorization", "Bearer "+access)
	}

	resp, err := t.base().RoundTrip(signed)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if retried, _ := req.Context().Value(retriedKey{}).(bool); retried {
		return resp, nil
	}

	fresh, ok := t.Tokens.Refresh(req.Context(), access)
	if !ok {
		return resp, nil
	}
	retry, err := rewind(signed)
	if err != nil {
		return resp, nil
	}
	drain(resp)

	ctx := context.WithValue(req.Context(), retriedKey{}, true)
	retry = retry.WithContext(ctx)
	retry.Header.Set("Authorization", "Bearer "+fresh)
	return t.base().RoundTrip(retry)
}

// rewind returns a copy of req whose body can be sent again.
func rewind(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, http.ErrBodyReadAfterClose
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
