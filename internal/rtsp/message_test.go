package rtsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageRequest(t *testing.T) {
	raw := "GET_PARAMETER rtsp://localhost/hisight1 RTSP/1.0\r\nCSeq: 3\r\n\r\nhis_version\r\nhis_feature\r\n"
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "GET_PARAMETER rtsp://localhost/hisight1 RTSP/1.0", msg.FirstLine)
	assert.Equal(t, 3, msg.CSeq)
	assert.False(t, msg.IsOK)
}

func TestParseMessageResponse(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 7\r\nContent-Length: 0\r\n\r\n"
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsOK)
	assert.Equal(t, 7, msg.CSeq)
}

func TestParseMessageRejectsTooShort(t *testing.T) {
	_, err := ParseMessage("ANNOUNCE * RTSP/1.0")
	assert.Error(t, err)
}

func TestParseMessageParameterListLandsInBody(t *testing.T) {
	raw := "GET_PARAMETER * RTSP/1.0\r\nCSeq: 1\r\n\r\nhis_version\r\nhis_vtp\r\n"
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, "his_version")
}

func TestParseMessageToleratesBareLineFeeds(t *testing.T) {
	raw := "GET_PARAMETER * RTSP/1.0\nCSeq: 5\n\nhis_version\n"
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "GET_PARAMETER * RTSP/1.0", msg.FirstLine)
	assert.Equal(t, 5, msg.CSeq)
	assert.Contains(t, msg.Body, "his_version")
}

func TestParseMessageToleratesMixedLineEndings(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 2\n\r\n"
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.True(t, msg.IsOK)
	assert.Equal(t, 2, msg.CSeq)
}

func TestParseIntSafe(t *testing.T) {
	assert.Equal(t, 42, ParseIntSafe("42"))
	assert.Equal(t, -1, ParseIntSafe(""))
	assert.Equal(t, -1, ParseIntSafe("2abc"))
}

func TestEncapRequestWithBodyRoundTrips(t *testing.T) {
	raw := EncapRequestWithBody(MethodAnnounce, "*", 1, "encrypt_description: encrypt_list=aes128ctr, version=1\r\n")
	msg, err := ParseMessage(raw)
	require.NoError(t, err)
	assert.Equal(t, "ANNOUNCE * RTSP/1.0", msg.FirstLine)
	assert.Equal(t, 1, msg.CSeq)
	assert.Contains(t, msg.Body, "encrypt_list=aes128ctr")
}

func TestEncapCommonResponseEchoesCSeq(t *testing.T) {
	req, err := ParseMessage("OPTIONS * RTSP/1.0\r\nCSeq: 9\r\n\r\n")
	require.NoError(t, err)

	resp := EncapCommonResponse(req, statusOKLine)
	parsed, err := ParseMessage(resp)
	require.NoError(t, err)
	assert.True(t, parsed.IsOK)
	assert.Equal(t, 9, parsed.CSeq)
}

func TestCheckVersionRejectsOtherVersions(t *testing.T) {
	assert.NoError(t, CheckVersion(1))
	assert.Error(t, CheckVersion(2))
	assert.Error(t, CheckVersion(0))
}
