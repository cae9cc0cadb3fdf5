// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/lmchat/internal/lmstudio"
	"github.com/jeranaias/lmchat/internal/transcript"
)

const (
	testTimeout = 2 * time.Second
	testTick    = 5 * time.Millisecond
)

// =============================================================================
// FAKES
// =============================================================================

type fakeClient struct {
	mu       sync.Mutex
	models   []string
	listErr  error
	deltas   []string
	chatErr  error
	ejectErr error
	ejected  []string
	requests []lmstudio.ChatRequest

	// block, when set, holds ChatStream until it is closed.
	block chan struct{}
}

func (f *fakeClient) ListModels(ctx context.Context) ([]lmstudio.ModelInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	infos := make([]lmstudio.ModelInfo, 0, len(f.models))
	for _, id := range f.models {
		infos = append(infos, lmstudio.ModelInfo{ID: id})
	}
	return infos, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, req lmstudio.ChatRequest, fn lmstudio.DeltaFunc) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	out := ""
	for _, d := range f.deltas {
		out += d
		if fn != nil {
			fn(d)
		}
	}
	return out, f.chatErr
}

func (f *fakeClient) EjectModel(ctx context.Context, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ejected = append(f.ejected, model)
	return f.ejectErr
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if n, ok := e.(NoticeEvent); ok {
			out = append(out, n.Text)
		}
	}
	return out
}

func (r *recorder) deltas() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if d, ok := e.(DeltaEvent); ok {
			out = append(out, d.Delta)
		}
	}
	return out
}

func (r *recorder) has(match func(Event) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if match(e) {
			return true
		}
	}
	return false
}

func newTestController(t *testing.T, fake *fakeClient) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	ctrl := NewController(Options{
		NewClient: func(string) InferenceClient { return fake },
		Observer:  rec.observe,
	})
	return ctrl, rec
}

func connected(t *testing.T, fake *fakeClient) (*Controller, *recorder) {
	t.Helper()
	ctrl, rec := newTestController(t, fake)
	require.NoError(t, ctrl.Connect(context.Background(), "http://localhost:1234"))
	return ctrl, rec
}

// =============================================================================
// CONNECTION TESTS
// =============================================================================

func TestConnect(t *testing.T) {
	fake := &fakeClient{models: []string{"llama", "llava"}}
	ctrl, rec := connected(t, fake)

	st := ctrl.Snapshot()
	assert.True(t, st.Connected)
	assert.Equal(t, "llama", st.Model)
	assert.Equal(t, []string{"llama", "llava"}, st.Models)
	assert.NotEmpty(t, st.ActiveID, "connect creates a conversation")
	assert.Len(t, st.Conversations, 1)
	assert.Contains(t, rec.notices(), NoticeConnected)
}

func TestConnect_PreferredModel(t *testing.T) {
	fake := &fakeClient{models: []string{"llama", "llava"}}
	ctrl := NewController(Options{
		PreferredModel: "llava",
		NewClient:      func(string) InferenceClient { return fake },
	})

	require.NoError(t, ctrl.Connect(context.Background(), "http://localhost:1234"))
	assert.Equal(t, "llava", ctrl.Model())
}

func TestConnect_InvalidURL(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeClient{models: []string{"m"}})

	for _, raw := range []string{"", "   ", "localhost:1234", "ftp://host", "http://"} {
		err := ctrl.Connect(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
	assert.False(t, ctrl.Connected())
}

func TestConnect_Failures(t *testing.T) {
	tests := []struct {
		name   string
		fake   *fakeClient
		notice string
	}{
		{"unreachable", &fakeClient{listErr: lmstudio.ErrNotRunning}, NoticeConnectFailed},
		{"no models", &fakeClient{listErr: lmstudio.ErrNoModels}, NoticeNoModels},
		{"empty list", &fakeClient{}, NoticeNoModels},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctrl, rec := newTestController(t, tc.fake)

			err := ctrl.Connect(context.Background(), "http://localhost:1234")

			require.Error(t, err)
			assert.False(t, ctrl.Connected())
			assert.Contains(t, rec.notices(), tc.notice)
		})
	}
}

func TestDisconnect(t *testing.T) {
	ctrl, rec := connected(t, &fakeClient{models: []string{"m"}})

	ctrl.Disconnect()

	assert.False(t, ctrl.Connected())
	assert.Empty(t, ctrl.Model())
	assert.Contains(t, rec.notices(), NoticeDisconnected)

	_, err := ctrl.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotConnected)
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestSelectModel_EjectsPrevious(t *testing.T) {
	fake := &fakeClient{models: []string{"a", "b"}}
	ctrl, rec := connected(t, fake)

	require.NoError(t, ctrl.SelectModel(context.Background(), "b"))

	assert.Equal(t, "b", ctrl.Model())
	assert.Equal(t, []string{"a"}, fake.ejected)
	assert.True(t, rec.has(func(e Event) bool {
		m, ok := e.(ModelChangedEvent)
		return ok && m.Previous == "a" && m.Current == "b"
	}))

	// Same model: no eject.
	require.NoError(t, ctrl.SelectModel(context.Background(), "b"))
	assert.Len(t, fake.ejected, 1)
}

func TestSelectModel_EjectFailureStillSwitches(t *testing.T) {
	fake := &fakeClient{models: []string{"a", "b"}, ejectErr: errors.New("eject failed")}
	ctrl, _ := connected(t, fake)

	require.NoError(t, ctrl.SelectModel(context.Background(), "b"))
	assert.Equal(t, "b", ctrl.Model())
}

func TestSelectModel_Rejections(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeClient{models: []string{"a"}})
	assert.ErrorIs(t, ctrl.SelectModel(context.Background(), "a"), ErrNotConnected)

	require.NoError(t, ctrl.Connect(context.Background(), "http://localhost:1234"))
	assert.ErrorIs(t, ctrl.SelectModel(context.Background(), "zzz"), ErrUnknownModel)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend(t *testing.T) {
	fake := &fakeClient{models: []string{"llama"}, deltas: []string{"Hel", "lo"}}
	ctrl, rec := connected(t, fake)

	reply, err := ctrl.Send(context.Background(), "  Say hello  ")

	require.NoError(t, err)
	assert.Equal(t, "Hello", reply.Content)
	require.NotNil(t, reply.Metric)
	assert.Equal(t, 2, reply.Metric.Deltas)
	assert.Equal(t, "llama", reply.Metric.Model)
	assert.Equal(t, []string{"Hel", "lo"}, rec.deltas())

	active := ctrl.ActiveConversation()
	require.Len(t, active.Messages, 2)
	assert.Equal(t, "Say hello", active.Messages[0].Content)
	assert.Equal(t, "Hello", active.Messages[1].Content)
	assert.Equal(t, "Conversation: Say hello...", active.Name)

	req := fake.requests[0]
	assert.Equal(t, "llama", req.Model)
	assert.Equal(t, lmstudio.DefaultTemperature, req.Temperature)
	assert.Equal(t, lmstudio.DefaultMaxTokens, req.MaxTokens)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, transcript.DefaultTextPrompt, req.Messages[0].Text)

	_, inFlight := ctrl.Pending()
	assert.False(t, inFlight)
}

func TestSend_HistoryGrows(t *testing.T) {
	fake := &fakeClient{models: []string{"m"}, deltas: []string{"ok"}}
	ctrl, _ := connected(t, fake)

	_, err := ctrl.Send(context.Background(), "one")
	require.NoError(t, err)
	_, err = ctrl.Send(context.Background(), "two")
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	assert.Len(t, fake.requests[1].Messages, 4) // system, one, ok, two
}

func TestSend_EmptyRejected(t *testing.T) {
	ctrl, _ := connected(t, &fakeClient{models: []string{"m"}})

	_, err := ctrl.Send(context.Background(), "   ")

	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.True(t, ctrl.ActiveConversation().IsEmpty())
}

func TestSend_ServerErrorEventCommitsNothing(t *testing.T) {
	fake := &fakeClient{models: []string{"m"}, deltas: []string{"part"}, chatErr: lmstudio.ErrServerEvent}
	ctrl, rec := connected(t, fake)

	reply, err := ctrl.Send(context.Background(), "hello")

	require.Error(t, err)
	assert.Nil(t, reply)
	active := ctrl.ActiveConversation()
	require.Len(t, active.Messages, 1, "only the user message stays")
	assert.True(t, ctrl.Connected(), "an error event keeps the connection")
	assert.Contains(t, rec.notices(), NoticeServerEvent)
}

func TestSend_ConnectivityFailureDisconnects(t *testing.T) {
	fake := &fakeClient{models: []string{"m"}, chatErr: &lmstudio.ClientError{Type: lmstudio.ErrTypeConnection, Message: "boom"}}
	ctrl, rec := connected(t, fake)

	_, err := ctrl.Send(context.Background(), "hello")

	require.Error(t, err)
	assert.False(t, ctrl.Connected())
	assert.Len(t, ctrl.ActiveConversation().Messages, 1)
	assert.Contains(t, rec.notices(), NoticeResponseFailed)
	assert.True(t, rec.has(func(e Event) bool { _, ok := e.(DisconnectedEvent); return ok }))
}

func TestSend_BusyWhileInFlight(t *testing.T) {
	fake := &fakeClient{models: []string{"a", "b"}, deltas: []string{"x"}, block: make(chan struct{})}
	ctrl, _ := connected(t, fake)
	convID := ctrl.ActiveConversation().ID

	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Send(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		_, inFlight := ctrl.Pending()
		return inFlight
	}, testTimeout, testTick)

	_, err := ctrl.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, ctrl.SelectModel(context.Background(), "b"), ErrBusy)
	assert.ErrorIs(t, ctrl.DeleteConversation(convID), ErrBusy)
	assert.True(t, ctrl.Snapshot().InFlight)

	close(fake.block)
	require.NoError(t, <-done)
	assert.False(t, ctrl.Snapshot().InFlight)
}

func TestDeleteConversation_RacingSendKeepsReply(t *testing.T) {
	fake := &fakeClient{models: []string{"a"}, deltas: []string{"x"}}
	ctrl, rec := connected(t, fake)

	for i := 0; i < 50; i++ {
		convID := ctrl.NewConversation().ID

		done := make(chan error, 1)
		go func() {
			_, err := ctrl.Send(context.Background(), "hello")
			done <- err
		}()

		var sendErr error
	loop:
		for {
			select {
			case sendErr = <-done:
				break loop
			default:
				if ctrl.DeleteConversation(convID) == nil {
					sendErr = <-done
					break loop
				}
			}
		}

		require.NoError(t, sendErr, "iteration %d", i)
	}
	assert.NotContains(t, rec.notices(), NoticeReplyDropped)
}

func TestSend_ReplyDroppedNotifies(t *testing.T) {
	fake := &fakeClient{models: []string{"a"}, deltas: []string{"x"}}
	rec := &recorder{}
	var ctrl *Controller
	ctrl = NewController(Options{
		NewClient: func(string) InferenceClient { return fake },
		Observer: func(e Event) {
			rec.observe(e)
			// Remove the conversation behind the controller's back.
			if d, ok := e.(DeltaEvent); ok {
				ctrl.store.DeleteConversation(d.ConversationID)
			}
		},
	})
	require.NoError(t, ctrl.Connect(context.Background(), "http://localhost:1234"))

	_, err := ctrl.Send(context.Background(), "hello")

	assert.ErrorIs(t, err, transcript.ErrConversationNotFound)
	assert.Contains(t, rec.notices(), NoticeReplyDropped)
	assert.True(t, rec.has(func(e Event) bool {
		ev, ok := e.(ErrorEvent)
		return ok && errors.Is(ev.Err, transcript.ErrConversationNotFound)
	}))
	assert.False(t, ctrl.Snapshot().InFlight)
}

// =============================================================================
// IMAGE TESTS
// =============================================================================

func TestSend_WithImage(t *testing.T) {
	fake := &fakeClient{models: []string{"llava"}, deltas: []string{"A cat."}}
	ctrl, _ := connected(t, fake)

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0600))

	img, err := ctrl.AttachImage(path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.NotNil(t, ctrl.Snapshot().PendingImage)

	_, err = ctrl.Send(context.Background(), "")
	require.NoError(t, err)

	assert.Nil(t, ctrl.Snapshot().PendingImage, "image is consumed by the send")
	req := fake.requests[0]
	assert.Equal(t, transcript.DefaultImagePrompt, req.Messages[0].Text)
	require.True(t, req.Messages[1].IsMultipart())
	assert.Equal(t, lmstudio.PartTypeImageURL, req.Messages[1].Parts[1].Type)
}

func TestClearImage(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeClient{})
	assert.False(t, ctrl.ClearImage())

	_, err := ctrl.AttachImage(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversationActions(t *testing.T) {
	ctrl, _ := connected(t, &fakeClient{models: []string{"m"}})
	first := ctrl.ActiveConversation().ID

	second := ctrl.NewConversation()
	assert.Equal(t, second.ID, ctrl.ActiveConversation().ID)

	assert.True(t, ctrl.SelectConversation(first))
	assert.False(t, ctrl.SelectConversation("missing"))
	assert.Equal(t, first, ctrl.ActiveConversation().ID)

	require.NoError(t, ctrl.RenameConversation(second.ID, "Notes"))
	id, ok := ctrl.ConversationAt(2)
	require.True(t, ok)
	assert.Equal(t, second.ID, id)

	require.NoError(t, ctrl.DeleteConversation(first))
	assert.Equal(t, second.ID, ctrl.ActiveConversation().ID)
	assert.ErrorIs(t, ctrl.DeleteConversation("missing"), transcript.ErrConversationNotFound)
}

func TestUpdateSettings(t *testing.T) {
	fake := &fakeClient{models: []string{"m"}, deltas: []string{"ok"}}
	ctrl, _ := connected(t, fake)

	s := DefaultSettings()
	s.Temperature = 0.2
	s.MaxTokens = 256
	s.Prompts.Text = "be brief"
	ctrl.UpdateSettings(s)

	_, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)

	req := fake.requests[0]
	assert.Equal(t, 0.2, req.Temperature)
	assert.Equal(t, 256, req.MaxTokens)
	assert.Equal(t, "be brief", req.Messages[0].Text)
}

// =============================================================================
// END TO END WITH A REAL CLIENT
// =============================================================================

func TestController_WithServer(t *testing.T) {
	var ejected string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			io.WriteString(w, `{"data":[{"id":"first"},{"id":"second"}]}`)
		case "/v1/model/eject":
			body, _ := io.ReadAll(r.Body)
			ejected = gjson.GetBytes(body, "model").String()
		case "/v1/chat/completions":
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n")
			io.WriteString(w, "data: [DONE]\n")
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctrl := NewController(Options{})
	require.NoError(t, ctrl.Connect(context.Background(), server.URL))
	require.NoError(t, ctrl.SelectModel(context.Background(), "second"))
	assert.Equal(t, "first", ejected)

	reply, err := ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", reply.Content)
}

func TestController_ServerGoesAway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			io.WriteString(w, `{"data":[{"id":"m"}]}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctrl := NewController(Options{})
	require.NoError(t, ctrl.Connect(context.Background(), server.URL))

	_, err := ctrl.Send(context.Background(), "hi")

	require.Error(t, err)
	assert.True(t, lmstudio.IsConnectivity(err))
	assert.False(t, ctrl.Connected())
	assert.Len(t, ctrl.ActiveConversation().Messages, 1)
}
