package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// The two credentials the mailer carries.
const (
	notionToken  = "ntn_4123456789abcdefGHIJKLmnopqrSTUVwxyz0123456"
	refreshToken = "M.C512_BAY.0.U.-Cq9fakeRefreshToken!Zx7*Kp2$"
)

var credentials = map[string]string{
	"notion token":  notionToken,
	"refresh token": refreshToken,
}

// settings mirrors how the credentials sit in the loaded configuration.
type settings struct {
	Notion struct {
		Token      SecretString `json:"token"`
		DatabaseID string       `json:"database_id"`
	} `json:"notion"`
	Microsoft struct {
		ClientID     string       `json:"client_id"`
		RefreshToken SecretString `json:"refresh_token"`
	} `json:"microsoft"`
}

func loadedSettings() settings {
	var s settings
	s.Notion.Token = SecretString(notionToken)
	s.Notion.DatabaseID = "1f2e3d4c5b6a"
	s.Microsoft.ClientID = "00000000-aaaa-bbbb-cccc-000000000000"
	s.Microsoft.RefreshToken = SecretString(refreshToken)
	return s
}

func assertRedacted(t *testing.T, where, out string) {
	t.Helper()
	for name, raw := range credentials {
		if strings.Contains(out, raw) {
			t.Errorf("%s leaked the %s: %s", where, name, out)
		}
	}
	if !strings.Contains(out, redactedPlaceholder) {
		t.Errorf("%s is missing the placeholder: %s", where, out)
	}
}

func TestSecretString_FormatVerbs(t *testing.T) {
	for name, raw := range credentials {
		s := SecretString(raw)
		for _, verb := range []string{"%s", "%v", "%+v", "%q"} {
			t.Run(name+" "+verb, func(t *testing.T) {
				out := fmt.Sprintf("value="+verb, s)
				assertRedacted(t, "fmt "+verb, out)
			})
		}
	}
}

func TestSecretString_UnmaskReturnsCredential(t *testing.T) {
	for name, raw := range credentials {
		t.Run(name, func(t *testing.T) {
			if got := SecretString(raw).Unmask(); got != raw {
				t.Errorf("Unmask() = %q, want %q", got, raw)
			}
		})
	}
}

func TestSecretString_SettingsJSON(t *testing.T) {
	data, err := json.Marshal(loadedSettings())
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}

	out := string(data)
	assertRedacted(t, "settings JSON", out)
	if !strings.Contains(out, `"database_id":"1f2e3d4c5b6a"`) {
		t.Errorf("non-secret fields should survive: %s", out)
	}
	if n := strings.Count(out, redactedPlaceholder); n != 2 {
		t.Errorf("expected both credentials redacted, got %d placeholders: %s", n, out)
	}
}

func TestSecretString_SettingsFormattedWithPlusV(t *testing.T) {
	out := fmt.Sprintf("%+v", loadedSettings())
	assertRedacted(t, "%+v of settings", out)
}

func TestSecretString_Slog(t *testing.T) {
	for name, handler := range map[string]func(*bytes.Buffer) slog.Handler{
		"json": func(b *bytes.Buffer) slog.Handler { return slog.NewJSONHandler(b, nil) },
		"text": func(b *bytes.Buffer) slog.Handler { return slog.NewTextHandler(b, nil) },
	} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(handler(&buf))
			s := loadedSettings()

			logger.Info("configuration loaded",
				slog.Group("notion", "token", s.Notion.Token, "database_id", s.Notion.DatabaseID),
				slog.Group("microsoft", "refresh_token", s.Microsoft.RefreshToken),
			)
			logger.Info("settings", "value", s)

			assertRedacted(t, "slog "+name, buf.String())
		})
	}
}

func TestSecretString_ErrorMessage(t *testing.T) {
	cause := fmt.Errorf("exchange with %v rejected", SecretString(refreshToken))
	err := NewAppError(ErrCodeTokenRefresh, "token refresh failed", cause)

	assertRedacted(t, "wrapped error", fmt.Sprintf("%v: %v", err, errors.Unwrap(err)))
}

func TestSecretString_Unset(t *testing.T) {
	var s SecretString

	if !s.IsZero() {
		t.Error("IsZero() on an unset credential should be true")
	}
	if SecretString(notionToken).IsZero() {
		t.Error("IsZero() on a configured credential should be false")
	}
	if s.String() != redactedPlaceholder {
		t.Errorf("String() on unset credential = %q, want %q", s.String(), redactedPlaceholder)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("MarshalJSON on unset credential returned error: %v", err)
	}
	if want := `"` + redactedPlaceholder + `"`; string(data) != want {
		t.Errorf("MarshalJSON on unset credential = %q, want %q", string(data), want)
	}
}
