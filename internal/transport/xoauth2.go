package transport

import "github.com/emersion/go-sasl"

// xoauth2Client implements the SASL XOAUTH2 mechanism used by Gmail and
// Outlook SMTP submission. go-sasl ships OAUTHBEARER, but neither provider
// accepts it on the submission port, so the initial response is built here.
type xoauth2Client struct {
	username string
	token    string
}

func newXOAuth2Client(username, token string) sasl.Client {
	return &xoauth2Client{username: username, token: token}
}

func (c *xoauth2Client) Start() (string, []byte, error) {
	ir := []byte("user=" + c.username + "\x01auth=Bearer " + c.token + "\x01\x01")
	return "XOAUTH2", ir, nil
}

// Next handles the error challenge: the server sends a base64 JSON blob and
// expects an empty response before issuing the final 535.
func (c *xoauth2Client) Next(_ []byte) ([]byte, error) {
	return []byte{}, nil
}
