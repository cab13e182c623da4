package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// PrintNavigator writes every navigation target to w for the user to open.
func PrintNavigator(w io.Writer) session.Navigator {
	return session.NavigatorFunc(func(_ context.Context, target string) error {
		_, err := fmt.Fprintln(w, target)
		return err
	})
}

// FollowNavigator plays the browser: it requests the target with client
// and follows redirects while they stay on host, so cookies the backend
// sets along the way land in client's jar. Relative targets resolve
// against base.
func FollowNavigator(client *http.Client, base string, out io.Writer) (session.Navigator, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	follower := *client
	follower.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 10 {
			return fmt.Errorf("stopped after %d redirects", len(via))
		}
		if req.URL.Host != baseURL.Host {
			return http.ErrUseLastResponse
		}
		return nil
	}

	return session.NavigatorFunc(func(ctx context.Context, target string) error {
		u, err := baseURL.Parse(target)
		if err != nil {
			return err
		}
		if u.Host != baseURL.Host {
			_, err := fmt.Fprintln(out, u.String())
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := follower.Do(req)
		if err != nil {
			return fmt.Errorf("follow %s: %w", u.Redacted(), err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		final := resp.Request.URL.String()
		if loc := resp.Header.Get("Location"); loc != "" {
			final = loc
		}
		_, err = fmt.Fprintln(out, final)
		return err
	}), nil
}
