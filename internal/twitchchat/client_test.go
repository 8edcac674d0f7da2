package twitchchat

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	twitchirc "github.com/gempir/go-twitch-irc/v4"
	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func privmsg(channel, user, text string) twitchirc.PrivateMessage {
	return twitchirc.PrivateMessage{
		User:    twitchirc.User{Name: user, DisplayName: user},
		Channel: channel,
		Message: text,
		ID:      "msg-1",
	}
}

func TestToChatMessage(t *testing.T) {
	got := toChatMessage(privmsg("#Streamer", "viewer", "turn it red"))
	assert.Equal(t, dispatch.ChatMessage{
		ID:        "msg-1",
		Channel:   "streamer",
		UserLogin: "viewer",
		Text:      "turn it red",
	}, got)
}

func TestNew_MessageHandlerOnlyWhenAllowed(t *testing.T) {
	var got []dispatch.ChatMessage
	handler := func(m dispatch.ChatMessage) { got = append(got, m) }

	c := New(Config{Username: "bot", AccessToken: "tok", Channel: "streamer"}, handler)
	assert.False(t, c.MessagesEnabled())
	assert.False(t, c.IsConnected())
	c.handlePrivateMessage(privmsg("streamer", "viewer", "red"))
	assert.Empty(t, got)

	c = New(Config{Username: "bot", AccessToken: "tok", Channel: "#Streamer", AllowChat: true}, handler)
	assert.True(t, c.MessagesEnabled())
	c.handlePrivateMessage(privmsg("streamer", "viewer", "red"))
	require.Len(t, got, 1)
	assert.Equal(t, "red", got[0].Text)
}

func TestHandlePrivateMessage_IgnoresOtherChannels(t *testing.T) {
	var got []dispatch.ChatMessage
	c := New(Config{Channel: "streamer", AllowChat: true}, func(m dispatch.ChatMessage) { got = append(got, m) })

	c.handlePrivateMessage(privmsg("someoneelse", "viewer", "blue"))
	assert.Empty(t, got)
}

func TestIRCPassword(t *testing.T) {
	assert.Equal(t, "oauth:abc", ircPassword("abc"))
	assert.Equal(t, "oauth:abc", ircPassword("oauth:abc"))
}

func TestNormalizeChannel(t *testing.T) {
	assert.Equal(t, "streamer", normalizeChannel(" #Streamer "))
}

func TestRun_ReturnsOnCancelBeforeLogin(t *testing.T) {
	// 接続は受け付けるが何も送らないサーバー
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			conn.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	c := New(Config{Username: "bot", AccessToken: "tok", Channel: "streamer"}, nil)
	c.client.TLS = false
	c.client.IrcAddress = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.IsConnected())
}
