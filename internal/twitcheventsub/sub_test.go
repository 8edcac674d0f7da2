package twitcheventsub

import (
	"testing"

	"github.com/nantokaworks/twitch-lighter/internal/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = `{
	"id": "17fa2df1-ad76-4804-bfa5-a40ef63efe63",
	"broadcaster_user_id": "1337",
	"broadcaster_user_login": "cool_user",
	"broadcaster_user_name": "Cool_User",
	"user_id": "9001",
	"user_login": "cooler_user",
	"user_name": "Cooler_User",
	"user_input": "light sea green",
	"status": "unfulfilled",
	"reward": {
		"id": "92af127c-7326-4483-a52b-b0da0be61c01",
		"title": "Change the light",
		"cost": 100,
		"prompt": "type a color"
	},
	"redeemed_at": "2020-07-15T17:16:03.17106713Z"
}`

func TestDecodeRedemption(t *testing.T) {
	r, ok, err := decodeRedemption([]byte(sampleEvent), "92af127c-7326-4483-a52b-b0da0be61c01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dispatch.Redemption{
		ID:        "17fa2df1-ad76-4804-bfa5-a40ef63efe63",
		RewardID:  "92af127c-7326-4483-a52b-b0da0be61c01",
		UserLogin: "cooler_user",
		UserInput: "light sea green",
	}, r)
}

func TestDecodeRedemption_OtherReward(t *testing.T) {
	_, ok, err := decodeRedemption([]byte(sampleEvent), "another-reward")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeRedemption_AnyRewardWhenUnset(t *testing.T) {
	_, ok, err := decodeRedemption([]byte(sampleEvent), "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDecodeRedemption_Invalid(t *testing.T) {
	_, _, err := decodeRedemption([]byte(`{"id":`), "")
	assert.Error(t, err)
}

func TestHandleRedemption_Forwards(t *testing.T) {
	var got []dispatch.Redemption
	c := New(Config{RewardID: "92af127c-7326-4483-a52b-b0da0be61c01"}, func(r dispatch.Redemption) {
		got = append(got, r)
	})

	c.handleRedemption([]byte(sampleEvent))
	c.handleRedemption([]byte(`not json`))

	require.Len(t, got, 1)
	assert.Equal(t, "light sea green", got[0].UserInput)
}

func TestCondition(t *testing.T) {
	c := New(Config{BroadcasterID: "1337"}, nil)
	assert.Equal(t, map[string]string{"broadcaster_user_id": "1337"}, c.condition())

	c = New(Config{BroadcasterID: "1337", RewardID: "w"}, nil)
	assert.Equal(t, map[string]string{"broadcaster_user_id": "1337", "reward_id": "w"}, c.condition())
}

func TestStart_RequiresToken(t *testing.T) {
	c := New(Config{}, nil)
	assert.Error(t, c.Start(""))
	assert.False(t, c.IsConnected())
}

func TestDecodeRedemption_UsesEmbeddedUser(t *testing.T) {
	// user_login は埋め込みのUserから取り出す
	raw := `{"id":"r1","user_id":"9","user_login":"viewer","user_name":"Viewer","user_input":"red","status":"unfulfilled","reward":{"id":"w","title":"t","cost":1},"redeemed_at":"2024-01-02T03:04:05Z"}`

	r, ok, err := decodeRedemption([]byte(raw), "w")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, dispatch.Redemption{ID: "r1", RewardID: "w", UserLogin: "viewer", UserInput: "red"}, r)
}
