/*
Package authsdk is the transport client for the identity-and-session
backend consumed by the tabsession session manager.

# Overview

The backend owns every identity-provider interaction. The client only ever
talks to it through a small set of REST endpoints:

  - login (single-tenant): GET, a browser redirect to the identity provider
  - login (multi-tenant): POST with email and frontend_redirect_uri, answers
    with the tenant specific authorization URL
  - current user: GET, resolves the profile from cookie or bearer
  - token exchange: GET, trades the cookie session for a Credential Set
  - refresh: POST, renews the Credential Set from a refresh credential
  - validate: POST, checks a bearer credential
  - logout: GET (local, redirect) or POST (complete, JSON)

Create a Client with the backend base URL and the cookie jar shared with the
rest of the session manager:

	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	client := authsdk.NewClient("https://auth.example.com", jar)

	resp, err := client.InitiateTenantLogin(ctx, "user@acme.com", "https://app.example.com/")

Redirect style endpoints are never fetched, the client builds their URLs
(LoginURL, LogoutURL) so the caller can navigate to them.

# Error Handling

Two error types separate "could not reach the backend" from "the backend
said no":

  - TransportError: the request never produced an HTTP response
  - APIError: the backend answered with an unexpected status code

Example:

	_, err := client.ExchangeToken(ctx)
	var apiErr *authsdk.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized:
		// no cookie session, the user has to log in
	case authsdk.IsTransport(err):
		// check connectivity and retry
	}

# Thread Safety

A Client holds no mutable state of its own and is safe for concurrent use.
Cookies are shared through the http.Client's jar.
*/
package authsdk
