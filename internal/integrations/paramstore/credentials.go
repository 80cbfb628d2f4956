package paramstore

import (
	"context"
	"errors"
	"strings"

	"gmail-archiver/internal/domain"
)

const (
	clientIDParam     = "/client_id"
	clientSecretParam = "/client_secret"
	refreshTokenParam = "/refresh_token"
)

// CredentialSource loads Gmail OAuth secrets stored under one parameter
// prefix. Nothing is cached; every call reads SSM again.
type CredentialSource struct {
	client *Client
	prefix string
}

func NewCredentialSource(client *Client, prefix string) (*CredentialSource, error) {
	if client == nil {
		return nil, errors.New("paramstore: client must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return nil, errors.New("paramstore: parameter prefix must not be empty")
	}
	return &CredentialSource{client: client, prefix: prefix}, nil
}

func (s *CredentialSource) Credentials(ctx context.Context) (domain.Credentials, error) {
	clientID := s.prefix + clientIDParam
	clientSecret := s.prefix + clientSecretParam
	refreshToken := s.prefix + refreshTokenParam

	values, err := s.client.GetParameters(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		return domain.Credentials{}, err
	}
	return domain.Credentials{
		ClientID:     values[clientID],
		ClientSecret: values[clientSecret],
		RefreshToken: values[refreshToken],
	}, nil
}
