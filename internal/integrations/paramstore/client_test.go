package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	last   *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.last = in
	return f.getOut, f.getErr
}

func ssmOutput(value string) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name:  aws.String("p"),
		Value: aws.String(value),
		Type:  types.ParameterTypeSecureString,
	}}
}

func TestGetParameter_DecryptsSecureString(t *testing.T) {
	api := &fakeAPI{getOut: ssmOutput("channel-secret-value")}
	client, err := New(api)
	require.NoError(t, err)

	v, err := client.GetParameter(context.Background(), " /chintai/line/channel-secret ")
	require.NoError(t, err)
	require.Equal(t, "channel-secret-value", v)
	require.Equal(t, "/chintai/line/channel-secret", aws.ToString(api.last.Name))
	require.True(t, aws.ToBool(api.last.WithDecryption))
}

func TestGetParameter_Failures(t *testing.T) {
	cases := []struct {
		name    string
		api     *fakeAPI
		param   string
		wantErr string
	}{
		{name: "missing value", api: &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: aws.String("p")}}}, param: "p", wantErr: "missing value"},
		{name: "nil output", api: &fakeAPI{}, param: "p", wantErr: "missing value"},
		{name: "api error", api: &fakeAPI{getErr: errors.New("ParameterNotFound")}, param: "p", wantErr: "ParameterNotFound"},
		{name: "blank name", api: &fakeAPI{}, param: "  ", wantErr: "required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := New(tc.api)
			require.NoError(t, err)
			_, err = client.GetParameter(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestGetParameter_ClientNotInitialized(t *testing.T) {
	_, err := (&Client{}).GetParameter(context.Background(), "p")
	require.ErrorContains(t, err, "not initialized")
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}
