// Package httputil holds small HTTP helpers shared by upstream API clients.
//
// [Retry] re-runs an operation with exponential backoff, but only for errors
// the caller has marked transient by wrapping them in [RetryableError]:
//
//	err := httputil.Retry(ctx, 3, 200*time.Millisecond, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return &httputil.RetryableError{Err: err}
//	    }
//	    if httputil.RetryableStatus(resp.StatusCode) {
//	        return &httputil.RetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
//	    }
//	    ...
//	})
//
// [StatusError] carries the HTTP status of a failed request so callers can
// branch on it with errors.As.
package httputil
