package apiclient

import "context"

// Interceptor hooks into every call made through a Client.
//
// InterceptRequest runs before the request is sent and may mutate it.
// Returning an error aborts the call.
//
// InterceptError runs when the call failed. It returns either a Response
// that resolves the failure, or an error (the original one when the
// interceptor does not handle it). Interceptors may call c.Send to replay
// the request.
type Interceptor interface {
	InterceptRequest(ctx context.Context, req *Request) error
	InterceptError(ctx context.Context, c *Client, req *Request, err error) (*Response, error)
}

// Use registers i. It returns false and leaves the chain untouched if the
// same interceptor is already registered.
func (c *Client) Use(i Interceptor) bool {
	if i == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.interceptors {
		if existing == i {
			return false
		}
	}
	c.interceptors = append(c.interceptors, i)
	return true
}

// Has reports whether i is registered.
func (c *Client) Has(i Interceptor) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, existing := range c.interceptors {
		if existing == i {
			return true
		}
	}
	return false
}

// Eject removes i. It returns false if i was not registered.
func (c *Client) Eject(i Interceptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for n, existing := range c.interceptors {
		if existing == i {
			c.interceptors = append(c.interceptors[:n:n], c.interceptors[n+1:]...)
			return true
		}
	}
	return false
}

// Interceptors returns the number of registered interceptors.
func (c *Client) Interceptors() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.interceptors)
}
