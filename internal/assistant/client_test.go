package assistant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbip-tools/tentacles/internal/tmdl"
)

type fakeBot struct {
	mux        *http.ServeMux
	nonce      string
	messages   int
	refreshes  int
	rejectOnce bool
}

func newFakeBot(t *testing.T) (*fakeBot, *httptest.Server) {
	t.Helper()
	bot := &fakeBot{mux: http.NewServeMux(), nonce: "nonce-1"}
	srv := httptest.NewServer(bot.mux)
	t.Cleanup(srv.Close)

	bot.mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<div class="chat" data-config='{"ajaxUrl":"%s/ajax","nonce":"%s","botId":"7","postId":"42"}'></div>`,
			srv.URL, bot.nonce)
	})
	bot.mux.HandleFunc("/ajax", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		switch r.Form.Get("action") {
		case "aipkit_get_frontend_chat_nonce":
			bot.refreshes++
			bot.nonce = "nonce-2"
			fmt.Fprintf(w, `{"success":true,"data":{"nonce":"%s"}}`, bot.nonce)
		case "aipkit_frontend_chat_message":
			bot.messages++
			if bot.rejectOnce && r.Form.Get("_ajax_nonce") != bot.nonce {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			fmt.Fprint(w, `{"success":true,"data":{"reply":"Here you go:\n`+"```"+`dax\nEVALUATE Sales\n`+"```"+`"}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	return bot, srv
}

func newClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := New(Config{PageURL: srv.URL + "/chat"}, nil)
	require.NoError(t, err)
	return c
}

func TestConnectParsesDataConfig(t *testing.T) {
	_, srv := newFakeBot(t)
	c := newClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.Connected())
	assert.Equal(t, "nonce-1", c.nonce)
	assert.Equal(t, "7", c.botID)
	assert.Equal(t, "42", c.postID)
}

func TestGenerateExtractsDaxFence(t *testing.T) {
	_, srv := newFakeBot(t)
	c := newClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	reply, err := c.Generate(context.Background(), "total sales")
	require.NoError(t, err)
	assert.Equal(t, "EVALUATE Sales", reply)
}

func TestGenerateRefreshesNonceOnce(t *testing.T) {
	bot, srv := newFakeBot(t)
	c := newClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	bot.rejectOnce = true
	bot.nonce = "nonce-2" // server-side rotation invalidates the page nonce

	reply, err := c.Generate(context.Background(), "total sales")
	require.NoError(t, err)
	assert.Equal(t, "EVALUATE Sales", reply)
	assert.Equal(t, 1, bot.refreshes)
	assert.Equal(t, 2, bot.messages)
}

func TestGenerateWithoutConnect(t *testing.T) {
	_, srv := newFakeBot(t)
	c := newClient(t, srv)
	_, err := c.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestCleanReply(t *testing.T) {
	assert.Equal(t, "EVALUATE T", CleanReply("```dax\nEVALUATE T\n```"))
	assert.Equal(t, "EVALUATE T", CleanReply("text\n```\nEVALUATE T\n```\nmore"))
	assert.Equal(t, "plain", CleanReply("  plain  "))
}

func TestBuildPrompt(t *testing.T) {
	tables := []*tmdl.Table{{
		Name:     "Sales",
		Columns:  []string{"Amount"},
		Measures: []*tmdl.Measure{{Name: "Total"}},
	}}
	prompt := BuildPrompt("top customers", tables)
	assert.Contains(t, prompt, "table 'Sales'")
	assert.Contains(t, prompt, "'Sales'[Amount]")
	assert.Contains(t, prompt, "[Total]")
	assert.Contains(t, prompt, "Request: top customers")
}
