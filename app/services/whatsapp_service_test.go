package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blastline/blastline-backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *WhatsAppSender {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewWhatsAppSender(config.PlatformConfig{
		BaseURL:  server.URL,
		APIToken: "test-token",
		Timeout:  5 * time.Second,
	})
}

func TestWhatsAppSenderSuccess(t *testing.T) {
	var got sendMessagePayload
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.abc123"}]}`))
	})

	id, err := sender.SendTemplate(context.Background(), SendTemplateRequest{
		ChannelPhone: "+15550001111",
		ToPhone:      "+15551230001",
		TemplateName: "order_update",
		Language:     "en",
		Variables:    []string{"Ada", "1042"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc123", id)

	assert.Equal(t, "+15551230001", got.To)
	assert.Equal(t, "template", got.Type)
	assert.Equal(t, "order_update", got.Template.Name)
	require.Len(t, got.Template.Components, 1)
	assert.Len(t, got.Template.Components[0].Parameters, 2)
}

func TestWhatsAppSenderStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		skip      bool
		reason    string
	}{
		{"rate pushback is transient", http.StatusTooManyRequests, `{}`, false, false, "platform_unavailable"},
		{"server error is transient", http.StatusInternalServerError, `{}`, false, false, "platform_unavailable"},
		{"bad request is permanent", http.StatusBadRequest, `{}`, true, false, "platform_rejected"},
		{"recipient error type skips", http.StatusBadRequest, `{"error":{"code":131026,"type":"invalid_recipient"}}`, true, true, "invalid_recipient"},
		{"opted out contact skips", http.StatusBadRequest, `{"error":{"code":131050,"type":"recipient_opted_out"}}`, true, true, "recipient_opted_out"},
		{"ok without message id is transient", http.StatusOK, `{"messages":[]}`, false, false, "missing_message_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := sender.SendTemplate(context.Background(), SendTemplateRequest{
				ChannelPhone: "+15550001111",
				ToPhone:      "+15551230001",
				TemplateName: "order_update",
				Language:     "en",
			})
			require.Error(t, err)

			se, ok := AsSendError(err)
			require.True(t, ok)
			assert.Equal(t, tt.permanent, se.Permanent)
			assert.Equal(t, tt.skip, se.Skip)
			assert.Equal(t, tt.reason, se.Reason)
		})
	}
}

func TestMockMessageSender(t *testing.T) {
	sender := NewMockMessageSender()
	ctx := context.Background()
	req := SendTemplateRequest{ToPhone: "+15551230001", TemplateName: "order_update"}

	id, err := sender.SendTemplate(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, sender.SentCount())

	sender.FailFirst = 2
	for i := 0; i < 2; i++ {
		_, err = sender.SendTemplate(ctx, req)
		require.Error(t, err)
		se, ok := AsSendError(err)
		require.True(t, ok)
		assert.False(t, se.Permanent)
	}

	_, err = sender.SendTemplate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, sender.SentCount())
}
