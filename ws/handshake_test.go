package ws

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcceptKeyVector checks the RFC 6455 §1.3 worked example, the
// canonical vector for Sec-WebSocket-Accept.
func TestAcceptKeyVector(t *testing.T) {
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestRequestBuildParseRoundTrip(t *testing.T) {
	req, key := NewHandshakeRequest("example.com", "/chat", []string{"chat", "superchat"})
	require.NotEmpty(t, key)

	parsed, err := ParseRequest(bufio.NewReader(bytes.NewReader(req.Build())))
	require.NoError(t, err)
	require.Equal(t, "GET", parsed.Method)
	require.Equal(t, "/chat", parsed.Path)
	require.Equal(t, "example.com", parsed.Host)
	require.Equal(t, key, parsed.Headers.Get("Sec-WebSocket-Key"))
	require.Equal(t, []string{"chat", "superchat"}, parsed.Protocols)
}

func TestResponseBuildParseRoundTrip(t *testing.T) {
	resp := BuildSuccessResponse("dGhlIHNhbXBsZSBub25jZQ==", "chat")
	parsed, err := ParseResponse(bufio.NewReader(bytes.NewReader(resp.Build())))
	require.NoError(t, err)
	require.Equal(t, 101, parsed.Status)
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", parsed.Headers.Get("Sec-WebSocket-Accept"))
	require.Equal(t, "chat", parsed.Protocol)
}

func TestValidateRequestRejectsBadMethod(t *testing.T) {
	req, _ := NewHandshakeRequest("example.com", "/chat", nil)
	req.Method = "POST"
	resp, err := ValidateRequest(req)
	require.Error(t, err)
	require.Equal(t, 405, resp.Status)
}

func TestValidateRequestRejectsMissingUpgrade(t *testing.T) {
	req, _ := NewHandshakeRequest("example.com", "/chat", nil)
	req.Headers.Del("Upgrade")
	resp, err := ValidateRequest(req)
	require.Error(t, err)
	require.Equal(t, 400, resp.Status)
}

func TestValidateResponseRejectsWrongAccept(t *testing.T) {
	resp := BuildSuccessResponse("dGhlIHNhbXBsZSBub25jZQ==", "")
	resp.Headers.Set("Sec-WebSocket-Accept", "not-the-right-value")
	err := ValidateResponse(resp, "dGhlIHNhbXBsZSBub25jZQ==")
	require.Error(t, err)
}

func TestNegotiateProtocol(t *testing.T) {
	require.Equal(t, "chat", negotiateProtocol([]string{"chat", "json"}, []string{"chat", "xml"}))
	require.Equal(t, "", negotiateProtocol([]string{"foo"}, []string{"bar"}))
	require.Equal(t, "", negotiateProtocol(nil, []string{"bar"}))
}
