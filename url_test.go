package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	for _, test := range []struct {
		raw          string
		expectedURL  URL
		expectedText string
	}{
		{
			"stun:google.de",
			URL{Scheme: SchemeTypeSTUN, Host: "google.de", Port: 3478, Proto: ProtoTypeUDP},
			"stun:google.de:3478",
		},
		{
			"stun:google.de:1234",
			URL{Scheme: SchemeTypeSTUN, Host: "google.de", Port: 1234, Proto: ProtoTypeUDP},
			"stun:google.de:1234",
		},
		{
			"stuns:google.de",
			URL{Scheme: SchemeTypeSTUNS, Host: "google.de", Port: 5349, Proto: ProtoTypeTCP},
			"stuns:google.de:5349",
		},
		{
			"turn:google.de",
			URL{Scheme: SchemeTypeTURN, Host: "google.de", Port: 3478, Proto: ProtoTypeUDP},
			"turn:google.de:3478?transport=udp",
		},
		{
			"turn:google.de?transport=tcp",
			URL{Scheme: SchemeTypeTURN, Host: "google.de", Port: 3478, Proto: ProtoTypeTCP},
			"turn:google.de:3478?transport=tcp",
		},
		{
			"turns:google.de?transport=udp",
			URL{Scheme: SchemeTypeTURNS, Host: "google.de", Port: 5349, Proto: ProtoTypeUDP},
			"turns:google.de:5349?transport=udp",
		},
	} {
		u, err := ParseURL(test.raw)
		require.NoError(t, err, test.raw)
		assert.Equal(t, test.expectedURL.Scheme, u.Scheme, test.raw)
		assert.Equal(t, test.expectedURL.Host, u.Host, test.raw)
		assert.Equal(t, test.expectedURL.Port, u.Port, test.raw)
		assert.Equal(t, test.expectedURL.Proto, u.Proto, test.raw)
		assert.Equal(t, test.expectedText, u.String(), test.raw)
	}
}

func TestParseURLErrors(t *testing.T) {
	for _, test := range []struct {
		raw         string
		expectedErr error
	}{
		{"http://google.de", ErrSchemeType},
		{"stun:", ErrHost},
		{"stun:google.de:abc", ErrPort},
		{"stun:google.de?transport=udp", ErrSTUNQuery},
		{"stuns:google.de?transport=udp", ErrSTUNQuery},
		{"turn:google.de?trans=udp", ErrInvalidQuery},
		{"turn:google.de?transport=ip", ErrProtoType},
	} {
		_, err := ParseURL(test.raw)
		require.Error(t, err, test.raw)
		assert.Equal(t, test.expectedErr, err, test.raw)
	}
}

func TestURLIsSecure(t *testing.T) {
	assert.False(t, URL{Scheme: SchemeTypeSTUN}.IsSecure())
	assert.True(t, URL{Scheme: SchemeTypeSTUNS}.IsSecure())
	assert.False(t, URL{Scheme: SchemeTypeTURN}.IsSecure())
	assert.True(t, URL{Scheme: SchemeTypeTURNS}.IsSecure())
}
