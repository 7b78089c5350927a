package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"notionmail/internal/config"
)

type fakeSecretWriter struct {
	path  string
	value config.SecretString
	err   error
}

func (f *fakeSecretWriter) PutSecret(_ context.Context, path string, value config.SecretString) error {
	f.path = path
	f.value = value
	return f.err
}

type fakeIdentityClient struct {
	out *sts.GetCallerIdentityOutput
	err error
}

func (f *fakeIdentityClient) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	return f.out, f.err
}

func TestValidEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"dev", true},
		{"staging", true},
		{"prod", true},
		{"local", false},
		{"", false},
		{"PROD", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := validEnvironments[tt.env]; got != tt.valid {
				t.Errorf("validEnvironments[%q] = %v, want %v", tt.env, got, tt.valid)
			}
		})
	}
}

func TestDefaultSSMPath(t *testing.T) {
	if got := defaultSSMPath("prod"); got != "/prod/notionmail/ms-refresh-token" {
		t.Errorf("defaultSSMPath(prod) = %q", got)
	}
}

func TestConfirmProduction(t *testing.T) {
	id := awsIdentity{AccountID: "123456789012", ARN: "arn:aws:iam::123456789012:user/ops"}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"accepts yes", "yes\n", true},
		{"accepts YES", "YES\n", true},
		{"accepts yes with spaces", "  yes  \n", true},
		{"rejects no", "no\n", false},
		{"rejects empty", "\n", false},
		{"rejects EOF", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			got := confirmProduction(strings.NewReader(tt.input), &out, id, "/prod/notionmail/ms-refresh-token")
			if got != tt.want {
				t.Errorf("confirmProduction(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "123456789012") {
				t.Errorf("prompt should show the account, got %q", out.String())
			}
		})
	}
}

func TestVerifyIdentity(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	client := &fakeIdentityClient{out: &sts.GetCallerIdentityOutput{
		Account: aws.String("123456789012"),
		Arn:     aws.String("arn:aws:iam::123456789012:user/ops"),
	}}

	id, err := verifyIdentity(context.Background(), client, logger)
	if err != nil {
		t.Fatalf("verifyIdentity returned error: %v", err)
	}
	if id.AccountID != "123456789012" || id.ARN != "arn:aws:iam::123456789012:user/ops" {
		t.Errorf("unexpected identity %+v", id)
	}
}

func TestVerifyIdentity_Error(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	boom := errors.New("ExpiredToken")

	_, err := verifyIdentity(context.Background(), &fakeIdentityClient{err: boom}, logger)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped STS error, got %v", err)
	}
}

func TestStoreRefreshToken(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	w := &fakeSecretWriter{}

	if err := storeRefreshToken(context.Background(), w, "/dev/notionmail/ms-refresh-token", "rt-1", logger); err != nil {
		t.Fatalf("storeRefreshToken returned error: %v", err)
	}
	if w.path != "/dev/notionmail/ms-refresh-token" || w.value.Unmask() != "rt-1" {
		t.Errorf("wrote %q = %q", w.path, w.value.Unmask())
	}
}

func TestStoreRefreshToken_RelativePath(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	w := &fakeSecretWriter{}

	if err := storeRefreshToken(context.Background(), w, "dev/token", "rt-1", logger); err == nil {
		t.Fatal("expected error for relative path")
	}
	if w.path != "" {
		t.Error("nothing should be written for a relative path")
	}
}

func TestStoreRefreshToken_WriterError(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	boom := errors.New("AccessDeniedException")

	err := storeRefreshToken(context.Background(), &fakeSecretWriter{err: boom}, "/dev/t", "rt-1", logger)
	if !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
}
