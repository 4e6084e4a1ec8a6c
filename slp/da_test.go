package slp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvloc/srvloc/config"
	"github.com/srvloc/srvloc/wire"
)

func advert(t *testing.T, req []byte, url, scopes, attrs string, boot uint32) []byte {
	t.Helper()
	return replyTo(t, req, &wire.DAAdvert{
		BootTime: boot,
		URL:      url,
		Scopes:   scopes,
		Attrs:    attrs,
	})
}

func TestDiscoverDirectoryAgentsFillsCache(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		rqst := requestOf(t, req).(*wire.SrvRqst)
		require.Equal(t, ServiceTypeDA, rqst.ServiceType)
		return [][]byte{
			advert(t, req, "service:directory-agent://10.0.0.5", "DEFAULT,printers", "(min-refresh-interval=600)", 1700),
			advert(t, req, "service:directory-agent://10.0.0.6:1427", "storage", "", 1701),
		}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.DiscoverDirectoryAgents())

	scopes, err := h.FindScopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"DEFAULT", "printers", "storage"}, scopes)
	assert.Equal(t, uint16(600), h.RefreshInterval())
}

func TestDAAdvertShutdownEvicts(t *testing.T) {
	h, err := Open("en", false, WithTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	h.ingestDAAdvert(&wire.DAAdvert{BootTime: 99, URL: "service:directory-agent://da1", Scopes: "lab"})
	assert.Equal(t, 1, h.das.Len())

	h.ingestDAAdvert(&wire.DAAdvert{BootTime: 0, URL: "service:directory-agent://da1"})
	assert.Equal(t, 0, h.das.Len())
}

func TestDAAdvertIgnoresErrorsAndBadURLs(t *testing.T) {
	h, err := Open("en", false, WithTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	h.ingestDAAdvert(&wire.DAAdvert{Error: uint16(wire.CodeDABusyNow), BootTime: 5, URL: "service:directory-agent://da1"})
	h.ingestDAAdvert(&wire.DAAdvert{BootTime: 5, URL: "not a url"})
	assert.Equal(t, 0, h.das.Len())
}

func TestDAAdvertDuringDiscoveryFeedsRegistration(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		if _, ok := requestOf(t, req).(*wire.SrvRqst); !ok {
			return nil
		}
		return [][]byte{
			advert(t, req, "service:directory-agent://10.2.0.9", "DEFAULT", "", 42),
			replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{{Lifetime: 10, URL: "service:x://a"}}}),
		}
	}
	tr.onRequest = func(addr string, req []byte) ([]byte, error) {
		return replyTo(t, req, &wire.SrvAck{}), nil
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	// a passing DAAdvert on the multicast channel lands in the cache
	var got []urlResult
	require.NoError(t, h.FindServices("service:x", "", "", collectURLs(&got)))
	require.Len(t, got, 2)

	var st Status
	require.NoError(t, h.Register("service:x://a", 30, "", true, reportInto(&st)))
	assert.Equal(t, StatusOK, st)
	assert.Equal(t, []string{"10.2.0.9:427"}, tr.requests())
}

func TestFindScopesDefaultsWhenEmpty(t *testing.T) {
	props := config.Default(map[string]string{config.PropUseScopes: ""})
	h, err := Open("en", false, WithTransport(&fakeTransport{}), WithProperties(props))
	require.NoError(t, err)
	defer h.Close()

	scopes, err := h.FindScopes()
	require.NoError(t, err)
	assert.Equal(t, []string{"DEFAULT"}, scopes)
}

func TestMinRefreshAttr(t *testing.T) {
	assert.Equal(t, uint16(0), minRefreshAttr(""))
	assert.Equal(t, uint16(0), minRefreshAttr("(other=1)"))
	assert.Equal(t, uint16(120), minRefreshAttr("(x=y),(min-refresh-interval=120),(z=1)"))
	assert.Equal(t, uint16(0), minRefreshAttr("(min-refresh-interval=notanumber)"))
	assert.Equal(t, uint16(0), minRefreshAttr("(min-refresh-interval=99999999)"))
}

func TestRefreshIntervalTakesMaximum(t *testing.T) {
	h, err := Open("en", false, WithTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	h.ingestDAAdvert(&wire.DAAdvert{BootTime: 1, URL: "service:directory-agent://da1", Attrs: "(min-refresh-interval=60)"})
	h.ingestDAAdvert(&wire.DAAdvert{BootTime: 1, URL: "service:directory-agent://da2", Attrs: "(min-refresh-interval=300)"})
	assert.Equal(t, uint16(300), h.RefreshInterval())
}
