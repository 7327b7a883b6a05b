package connection

import (
	"encoding/base64"
	"net/http"
)

// Credentials is the authentication material presented to the server at
// connect time. The zero value connects anonymously.
//
// DriftDB accepts basic auth for both login styles: a user/password pair, or
// an API key alone, which is sent as basic auth with an empty user and the
// key as the password.
type Credentials struct {
	User     string
	Password string
	APIKey   string
}

// header renders the credentials as connect-time request headers.
func (c Credentials) header() http.Header {
	h := http.Header{}
	user, pass := c.User, c.Password
	if c.APIKey != "" {
		user, pass = "", c.APIKey
	}
	if user == "" && pass == "" {
		return h
	}
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	h.Set("Authorization", "Basic "+token)
	return h
}
