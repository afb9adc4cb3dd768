package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ChannelCredentials are the Messaging API secrets for one LINE channel.
type ChannelCredentials struct {
	Secret      string
	AccessToken string
}

func channelSecretName(prefix string) string { return prefix + "/line/channel-secret" }
func accessTokenName(prefix string) string   { return prefix + "/line/channel-access-token" }

// LoadChannelCredentials reads {prefix}/line/channel-secret and
// {prefix}/line/channel-access-token. Both must be non-empty.
func LoadChannelCredentials(ctx context.Context, getter Getter, prefix string) (ChannelCredentials, error) {
	if getter == nil {
		return ChannelCredentials{}, errors.New("paramstore: getter must not be nil")
	}
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ChannelCredentials{}, errors.New("paramstore: parameter prefix must not be empty")
	}

	secret, err := getNonEmpty(ctx, getter, channelSecretName(prefix))
	if err != nil {
		return ChannelCredentials{}, err
	}
	token, err := getNonEmpty(ctx, getter, accessTokenName(prefix))
	if err != nil {
		return ChannelCredentials{}, err
	}
	return ChannelCredentials{Secret: secret, AccessToken: token}, nil
}

func getNonEmpty(ctx context.Context, getter Getter, name string) (string, error) {
	v, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", err
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("paramstore: parameter %q is empty", name)
	}
	return v, nil
}
