package connection

import (
	"encoding/base64"
	"testing"
)

func TestCredentialsHeader(t *testing.T) {
	basic := func(user, pass string) string {
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	}

	tests := []struct {
		name  string
		creds Credentials
		want  string
	}{
		{"anonymous", Credentials{}, ""},
		{"user and password", Credentials{User: "alice", Password: "pw"}, basic("alice", "pw")},
		{"api key alone", Credentials{APIKey: "k123"}, basic("", "k123")},
		{"api key wins over user", Credentials{User: "alice", Password: "pw", APIKey: "k123"}, basic("", "k123")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.creds.header()
			if got := h.Get("Authorization"); got != tt.want {
				t.Errorf("Authorization = %q, want %q", got, tt.want)
			}
		})
	}
}
