package secret

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type ssmStub struct {
	values map[string]string
	err    error
	calls  []string
}

func (s *ssmStub) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	s.calls = append(s.calls, aws.ToString(params.Name))
	if s.err != nil {
		return nil, s.err
	}
	if !aws.ToBool(params.WithDecryption) {
		return nil, errors.New("decryption not requested")
	}
	value, ok := s.values[aws.ToString(params.Name)]
	if !ok {
		return &ssm.GetParameterOutput{}, nil
	}
	return &ssm.GetParameterOutput{Parameter: &ssmtypes.Parameter{Value: aws.String(value)}}, nil
}

func TestResolve(t *testing.T) {
	t.Setenv("AORA_TEST_KEY", "from-env")
	stub := &ssmStub{values: map[string]string{"/aora/appwrite-key": "from-ssm"}}
	resolver := NewSSMResolver(stub)

	cases := []struct {
		name string
		ref  string
		want string
	}{
		{"empty", "", ""},
		{"literal", "plain-value", "plain-value"},
		{"env", "env:AORA_TEST_KEY", "from-env"},
		{"ssm", "ssm:/aora/appwrite-key", "from-ssm"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(context.Background(), tc.ref, resolver)
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.ref, err)
			}
			if got != tc.want {
				t.Fatalf("resolve %q = %q want %q", tc.ref, got, tc.want)
			}
		})
	}
}

func TestResolveErrors(t *testing.T) {
	t.Setenv("AORA_TEST_MISSING", "")

	if _, err := Resolve(context.Background(), "env:AORA_TEST_MISSING", nil); err == nil {
		t.Fatal("expected error for unset variable")
	}
	if _, err := Resolve(context.Background(), "ssm:/aora/key", nil); !errors.Is(err, ErrNoSSM) {
		t.Fatalf("expected ErrNoSSM, got %v", err)
	}

	stub := &ssmStub{values: map[string]string{}}
	if _, err := Resolve(context.Background(), "ssm:/aora/absent", NewSSMResolver(stub)); err == nil {
		t.Fatal("expected error for parameter without value")
	}

	failing := &ssmStub{err: errors.New("throttled")}
	if _, err := NewSSMResolver(failing).GetSecret(context.Background(), "/aora/key"); err == nil {
		t.Fatal("expected ssm error to surface")
	}
}

func TestIsSSMReference(t *testing.T) {
	if !IsSSMReference(" ssm:/a") || IsSSMReference("env:A") {
		t.Fatal("unexpected reference detection")
	}
}
