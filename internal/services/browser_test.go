package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppID(t *testing.T) {
	appID, err := ParseAppID("https://steamcommunity.com/market/listings/730/AK-47%20%7C%20Redline")
	require.NoError(t, err)
	assert.Equal(t, "730", appID)

	appID, err = ParseAppID("https://steamcommunity.com/market/listings/440/Mann%20Co.%20Supply%20Crate%20Key")
	require.NoError(t, err)
	assert.Equal(t, "440", appID)
}

func TestParseAppIDMalformed(t *testing.T) {
	for _, link := range []string{
		"https://steamcommunity.com/market/search?q=ak",
		"https://steamcommunity.com/market/listings/",
		"",
	} {
		_, err := ParseAppID(link)
		var malformed *MalformedLinkError
		require.True(t, errors.As(err, &malformed), "link %q", link)
		assert.Equal(t, link, malformed.Link)
	}
}

func TestItemNameIDFromURL(t *testing.T) {
	id := itemNameIDFromURL("https://steamcommunity.com/market/itemordershistogram?country=US&language=english&currency=1&item_nameid=12345&two_factor=0")
	assert.Equal(t, "12345", id)

	// Unrelated page traffic never matches.
	assert.Equal(t, "", itemNameIDFromURL("https://steamcommunity.com/market/priceoverview/?appid=730"))
	assert.Equal(t, "", itemNameIDFromURL("https://community.cloudflare.steamstatic.com/public/javascript/market.js"))

	// A histogram URL missing the id resolves to nothing.
	assert.Equal(t, "", itemNameIDFromURL("https://steamcommunity.com/market/itemordershistogram?country=US"))
}
