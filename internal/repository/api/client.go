package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"consultline/pkg/errors"
)

// Client is a thin REST client for the consultline backend
type Client struct {
	http *resty.Client
}

// NewClient creates a client rooted at baseURL. A zero timeout disables the
// client-side deadline.
func NewClient(baseURL string, timeout time.Duration) *Client {
	hc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{http: hc}
}

// apiError is the error shape shared by all endpoints
type apiError struct {
	Success   bool   `json:"success"`
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

// envelope is the `{success, data}` wrapper of chat endpoints
type envelope[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

func (c *Client) request(ctx context.Context, authToken string) *resty.Request {
	req := c.http.R().
		SetContext(ctx).
		SetError(&apiError{})
	if authToken != "" {
		req.SetAuthToken(authToken)
	}
	return req
}

// check converts transport failures and non-2xx responses into AppErrors
func check(resp *resty.Response, err error) error {
	if err != nil {
		return errors.NetworkError(err)
	}
	if !resp.IsError() {
		return nil
	}

	body, _ := resp.Error().(*apiError)
	code, msg := "", ""
	if body != nil {
		code, msg = body.ErrorCode, body.Error
	}
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", resp.StatusCode())
	}

	switch {
	case code != "":
		return errors.NewWithStatus(errors.ErrorCode(code), msg, resp.StatusCode())
	case resp.StatusCode() == http.StatusUnauthorized:
		return errors.UnauthorizedError(msg)
	case resp.StatusCode() == http.StatusNotFound:
		return errors.NotFoundError(resp.Request.URL)
	default:
		return errors.NewWithStatus(errors.ErrCodeInternal, msg, resp.StatusCode())
	}
}

// checkEnvelope runs check and then honours the envelope's success flag,
// which a backend may clear on a 2xx response
func checkEnvelope[T any](resp *resty.Response, err error, out *envelope[T]) error {
	if err := check(resp, err); err != nil {
		return err
	}
	if out.Success {
		return nil
	}

	code := errors.ErrorCode(out.ErrorCode)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	msg := out.Error
	if msg == "" {
		msg = "backend reported an unsuccessful request"
	}
	return errors.NewWithStatus(code, msg, http.StatusBadGateway)
}
