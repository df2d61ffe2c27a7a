package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/valyala/fasthttp"
)

const tokenPath = "/oauth2-cc/token"

// FetchAccessToken exchanges an API key pair for a short-lived access
// token via the client-credentials grant. Use it server-side, then hand
// only the token to Config.
func FetchAccessToken(ctx context.Context, host, apiKey, secretKey string) (string, error) {
	if apiKey == "" || secretKey == "" {
		return "", errors.New("api key and secret key are both required")
	}
	if host == "" {
		host = DefaultHost
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	release := func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}

	u := url.URL{Scheme: "https", Host: host, Path: tokenPath}
	req.SetRequestURI(u.String())
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	cred := base64.StdEncoding.EncodeToString([]byte(apiKey + ":" + secretKey))
	req.Header.Set("Authorization", "Basic "+cred)
	req.SetBodyString("grant_type=client_credentials")

	errC := make(chan error, 1)
	go func() {
		errC <- fasthttp.Do(req, resp)
	}()
	select {
	case <-ctx.Done():
		// Do still owns req and resp; returning them to the pool now
		// would hand live buffers to the next caller.
		go func() {
			<-errC
			release()
		}()
		return "", ctx.Err()
	case err := <-errC:
		if err != nil {
			release()
			return "", fmt.Errorf("performing HTTP request: %w", err)
		}
	}
	defer release()

	if resp.StatusCode() != fasthttp.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode(), string(resp.Body()))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := sonic.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("unmarshaling token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("token response carries no access_token")
	}
	return payload.AccessToken, nil
}
