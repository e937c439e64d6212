package httpapi

import (
	"context"
	"errors"

	"github.com/MrEthical07/tokengate"
)

var (
	// ErrUnknownProvider is returned by an exchanger for a provider it does not serve.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrExchangeRejected is returned when the provider refuses the authorization code.
	ErrExchangeRejected = errors.New("oauth code rejected")
)

// OAuthExchanger swaps an authorization code for the identity the provider verified.
type OAuthExchanger interface {
	Exchange(ctx context.Context, provider, code, redirectURI string) (tokengate.ExternalIdentity, error)
}

// ExchangerFunc adapts a function to OAuthExchanger.
type ExchangerFunc func(ctx context.Context, provider, code, redirectURI string) (tokengate.ExternalIdentity, error)

func (f ExchangerFunc) Exchange(ctx context.Context, provider, code, redirectURI string) (tokengate.ExternalIdentity, error) {
	return f(ctx, provider, code, redirectURI)
}

func exchangeError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownProvider):
		return errors.Join(tokengate.ErrInvalidRequest, err)
	case errors.Is(err, ErrExchangeRejected):
		return errors.Join(tokengate.ErrInvalidCredentials, err)
	default:
		return err
	}
}
