package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-restbind/core"
)

// JWTExpiry reads the exp claim of a JWT access token without verifying it.
func JWTExpiry(token string) (time.Time, bool) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.UTC(), true
}

// WithJWTExpiry fills a missing ExpiresAt from the token's exp claim.
func WithJWTExpiry(fetcher core.CredentialFetcher) core.CredentialFetcher {
	return core.CredentialFetcherFunc(func(ctx context.Context) (core.FetchedCredential, error) {
		fetched, err := fetcher.Fetch(ctx)
		if err != nil {
			return fetched, err
		}
		if fetched.ExpiresAt.IsZero() {
			if exp, ok := JWTExpiry(fetched.Credential.Token); ok {
				fetched.ExpiresAt = exp
			}
		}
		return fetched, nil
	})
}
