package slp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srvloc/srvloc/config"
	"github.com/srvloc/srvloc/wire"
)

func TestFindServicesDeliversResultsInOrder(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		rqst := requestOf(t, req).(*wire.SrvRqst)
		assert.Equal(t, "service:http", rqst.ServiceType)
		assert.Equal(t, "DEFAULT", rqst.Scopes)
		return [][]byte{replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{
			{Lifetime: 300, URL: "service:http://a:80"},
			{Lifetime: 60, URL: "service:http://b:80"},
		}})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:http", "", "", collectURLs(&got)))

	require.Len(t, got, 3)
	assert.Equal(t, urlResult{"service:http://a:80", 300, StatusOK}, got[0])
	assert.Equal(t, urlResult{"service:http://b:80", 60, StatusOK}, got[1])
	assert.Equal(t, urlResult{"", 0, StatusLastCall}, got[2])
}

func TestFindServicesZeroResults(t *testing.T) {
	h, err := Open("en", false, WithTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:http", "", "", collectURLs(&got)))

	// exactly one terminal invocation, nothing before it
	require.Len(t, got, 1)
	assert.Equal(t, StatusLastCall, got[0].status)
}

func TestFindServicesStopAfterFirstReply(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		return [][]byte{replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{
			{Lifetime: 10, URL: "service:x://a"},
			{Lifetime: 10, URL: "service:x://b"},
		}})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var calls int
	require.NoError(t, h.FindServices("service:x", "", "", func(url string, _ uint16, st Status) Action {
		calls++
		return Stop
	}))

	// no second result and no last-call after Stop
	assert.Equal(t, 1, calls)
}

func TestFindServicesSuppressesDuplicates(t *testing.T) {
	tr := &fakeTransport{rounds: 3}
	tr.onConverge = func(req []byte) [][]byte {
		return [][]byte{replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{
			{Lifetime: 10, URL: "service:x://a"},
		}})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:x", "", "", collectURLs(&got)))

	// the same responder repeats its reply every round; only the first
	// copy reaches the callback
	require.Len(t, got, 2)
	assert.Equal(t, "service:x://a", got[0].url)
	assert.Equal(t, StatusLastCall, got[1].status)
}

func TestFindServicesHonorsMaxResults(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		return [][]byte{replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{
			{Lifetime: 10, URL: "service:x://a"},
			{Lifetime: 10, URL: "service:x://b"},
			{Lifetime: 10, URL: "service:x://c"},
		}})}
	}
	props := config.Default(map[string]string{config.PropMaxResults: "2"})
	h, err := Open("en", false, WithTransport(tr), WithProperties(props))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:x", "", "", collectURLs(&got)))

	require.Len(t, got, 3)
	assert.Equal(t, "service:x://a", got[0].url)
	assert.Equal(t, "service:x://b", got[1].url)
	assert.Equal(t, StatusLastCall, got[2].status)
}

func TestFindServicesWireErrorReachesCallback(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		return [][]byte{replyTo(t, req, &wire.SrvRply{Error: uint16(wire.CodeScopeNotSupported)})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:x", "", "", collectURLs(&got)))

	require.Len(t, got, 2)
	assert.Equal(t, StatusScopeNotSupported, got[0].status)
	assert.Equal(t, StatusLastCall, got[1].status)
}

func TestFindServicesDropsMalformedAndForeignReplies(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		good := replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{{Lifetime: 1, URL: "service:x://a"}}})
		foreign, err := wire.Marshal(wire.Header{XID: 0xBEEF, Lang: "en"}, &wire.SrvRply{URLs: []wire.URLEntry{{Lifetime: 1, URL: "service:x://other"}}})
		require.NoError(t, err)
		return [][]byte{
			{0x02, 0x02, 0x00}, // truncated garbage
			foreign,            // wrong XID
			good,
		}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var got []urlResult
	require.NoError(t, h.FindServices("service:x", "", "", collectURLs(&got)))

	require.Len(t, got, 2)
	assert.Equal(t, "service:x://a", got[0].url)
	assert.Equal(t, StatusLastCall, got[1].status)
}

func TestFindServicesAsync(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		return [][]byte{replyTo(t, req, &wire.SrvRply{URLs: []wire.URLEntry{
			{Lifetime: 10, URL: "service:x://a"},
		}})}
	}
	h, err := Open("en", true, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	results := make(chan urlResult, 4)
	require.NoError(t, h.FindServices("service:x", "", "", func(url string, life uint16, st Status) Action {
		results <- urlResult{url, life, st}
		return Continue
	}))

	first := <-results
	assert.Equal(t, urlResult{"service:x://a", 10, StatusOK}, first)
	select {
	case last := <-results:
		assert.Equal(t, StatusLastCall, last.status)
	case <-time.After(2 * time.Second):
		t.Fatal("terminal callback never arrived")
	}
}

func TestFindServiceTypes(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		rqst := requestOf(t, req).(*wire.SrvTypeRqst)
		assert.True(t, rqst.AllAuth)
		return [][]byte{replyTo(t, req, &wire.SrvTypeRply{Types: "service:http,service:ftp"})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var lists []string
	var statuses []Status
	require.NoError(t, h.FindServiceTypes("*", "", func(list string, st Status) Action {
		lists = append(lists, list)
		statuses = append(statuses, st)
		return Continue
	}))

	require.Len(t, lists, 2)
	assert.Equal(t, "service:http,service:ftp", lists[0])
	assert.Equal(t, []Status{StatusOK, StatusLastCall}, statuses)
}

func TestFindAttributes(t *testing.T) {
	tr := &fakeTransport{}
	tr.onConverge = func(req []byte) [][]byte {
		rqst := requestOf(t, req).(*wire.AttrRqst)
		assert.Equal(t, "service:http://a:80", rqst.URL)
		assert.Equal(t, "color", rqst.Tags)
		return [][]byte{replyTo(t, req, &wire.AttrRply{Attrs: "(color=red)"})}
	}
	h, err := Open("en", false, WithTransport(tr))
	require.NoError(t, err)
	defer h.Close()

	var lists []string
	require.NoError(t, h.FindAttributes("service:http://a:80", "", "color", func(list string, st Status) Action {
		if st == StatusOK {
			lists = append(lists, list)
		}
		return Continue
	}))
	assert.Equal(t, []string{"(color=red)"}, lists)
}

func TestFindServicesParameterValidation(t *testing.T) {
	h, err := Open("en", false, WithTransport(&fakeTransport{}))
	require.NoError(t, err)
	defer h.Close()

	err = h.FindServices("", "", "", collectURLs(new([]urlResult)))
	assert.Equal(t, StatusParameterBad, StatusOf(err))

	err = h.FindServices("service:x", "", "", nil)
	assert.Equal(t, StatusParameterBad, StatusOf(err))

	err = h.FindAttributes("", "", "", func(string, Status) Action { return Continue })
	assert.Equal(t, StatusParameterBad, StatusOf(err))
}
