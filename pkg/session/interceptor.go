package session

import (
	"context"

	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
)

// AuthInterceptor stamps the bearer token on outgoing requests and turns a
// 401 into at most one refresh-and-retry. Each Controller has exactly one,
// so binding it twice to the same client is a no-op.
type AuthInterceptor struct {
	ctrl *Controller
}

// Bind installs ctrl's auth interceptor on client. It returns false if it
// was already installed.
func Bind(client *apiclient.Client, ctrl *Controller) bool {
	return client.Use(ctrl.Interceptor())
}

// InterceptRequest attaches the current access token, read live, to every
// request including those that skip auth refresh.
func (a *AuthInterceptor) InterceptRequest(_ context.Context, req *apiclient.Request) error {
	if token := a.ctrl.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// InterceptError handles a 401 on a request that does not skip auth refresh:
//
//   - first 401: refresh, re-stamp and replay the request once; if the
//     refresh fails, log out and return the refresh error
//   - 401 on the replay: log out and return that error
//
// A refresh abandoned because ctx ended is returned without logging out.
// Everything else, including transport failures, passes through unchanged.
func (a *AuthInterceptor) InterceptError(ctx context.Context, c *apiclient.Client, req *apiclient.Request, err error) (*apiclient.Response, error) {
	apiErr, ok := apiclient.AsError(err)
	if !ok || req.SkipAuthRefresh || !apiErr.Unauthorized() {
		return nil, err
	}

	if req.Retried {
		a.ctrl.forceLogout(ctx, "retry_unauthorized")
		return nil, err
	}

	req.Retried = true
	token, refreshErr := a.ctrl.Refresh(ctx, "")
	if refreshErr != nil {
		if ctx.Err() != nil {
			return nil, refreshErr
		}
		a.ctrl.forceLogout(ctx, "refresh_failed")
		return nil, refreshErr
	}

	req.Header.Set("Authorization", "Bearer "+token)
	return c.Send(ctx, req)
}
