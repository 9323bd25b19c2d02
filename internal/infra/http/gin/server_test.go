package ginserver

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	appchat "marketchat/internal/app/chat"
	"marketchat/internal/app/commands"
	appdevices "marketchat/internal/app/devices"
	"marketchat/internal/app/dto"
	handlerschat "marketchat/internal/app/handlers/chat"
	handlersdevices "marketchat/internal/app/handlers/devices"
	"marketchat/internal/app/middleware"
	"marketchat/internal/app/queries"
	"marketchat/internal/app/realtime"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/identity"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/storage/memory"
)

type testServer struct {
	handler http.Handler
	devices *memory.DeviceRegistry
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewChatStore(memory.NewOutbox(), nil)
	listings := memory.NewListingCatalog(domainchat.Listing{ID: "ad-1", Title: "دراجة", SellerID: "seller"})
	svc := &appchat.Service{Store: store, Listings: listings, Logger: logger}
	broker := realtime.NewBroker(svc, 16, logger)
	svc.Publisher = broker
	registry := memory.NewDeviceRegistry()

	base := commands.NewInMemoryBus()
	handlerschat.Register(base, svc)
	devicesSvc := &appdevices.Service{Registry: registry, Logger: logger}
	handlersdevices.Register(base, devicesSvc)
	bus := middleware.ChainCommands(base,
		middleware.Logging(logger),
		middleware.Validation(),
		middleware.Idempotency(memory.NewIdempotencyStore(), nil),
	)

	reads := queries.NewInMemoryBus()
	handlerschat.RegisterQueries(reads, svc)
	handlersdevices.RegisterQueries(reads, devicesSvc)
	queryBus := middleware.ChainQueries(reads, middleware.QueryValidation())

	router := NewRouter(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           ChatHandler{Bus: bus, Queries: queryBus, Logger: logger},
		Devices:        DeviceHandler{Bus: bus, Queries: queryBus, Logger: logger},
		Realtime:       RealtimeHandler{Broker: broker, Logger: logger},
		AuthMiddleware: AuthMiddleware{Verifier: identity.DevVerifier{}, Logger: logger}.Handle,
	})
	return &testServer{handler: router, devices: registry}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s *testServer) startConversation(t *testing.T, buyer string) dto.Conversation {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/listings/ad-1/conversations", buyer, nil, nil)
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("start conversation: %d %s", rec.Code, rec.Body.String())
	}
	return decode[dto.Conversation](t, rec)
}

func TestStartConversationCreatedThenExisting(t *testing.T) {
	s := newTestServer(t)

	first := s.do(t, http.MethodPost, "/api/v1/listings/ad-1/conversations", "buyer", nil, nil)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	second := s.do(t, http.MethodPost, "/api/v1/listings/ad-1/conversations", "buyer", nil, nil)
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", second.Code)
	}
	a, b := decode[dto.Conversation](t, first), decode[dto.Conversation](t, second)
	if a.ID != b.ID {
		t.Fatalf("expected same conversation, got %s and %s", a.ID, b.ID)
	}
	if a.State != string(domainchat.StateCreated) || a.PeerID != "seller" || a.ListingTitle != "دراجة" {
		t.Fatalf("unexpected summary: %+v", a)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")

	cases := []struct {
		name   string
		method string
		path   string
		user   string
		body   any
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/conversations", "", nil, http.StatusUnauthorized},
		{"unknown listing", http.MethodPost, "/api/v1/listings/missing/conversations", "buyer", nil, http.StatusNotFound},
		{"seller contacting self", http.MethodPost, "/api/v1/listings/ad-1/conversations", "seller", nil, http.StatusBadRequest},
		{"blank text", http.MethodPost, "/api/v1/conversations/" + conv.ID + "/messages", "buyer", map[string]string{"text": "  \n "}, http.StatusBadRequest},
		{"outsider sends", http.MethodPost, "/api/v1/conversations/" + conv.ID + "/messages", "intruder", map[string]string{"text": "hi"}, http.StatusForbidden},
		{"outsider reads", http.MethodGet, "/api/v1/conversations/" + conv.ID + "/messages", "intruder", nil, http.StatusForbidden},
		{"unknown conversation", http.MethodGet, "/api/v1/conversations/nope", "buyer", nil, http.StatusNotFound},
		{"bad cursor", http.MethodGet, "/api/v1/conversations/" + conv.ID + "/messages?after=-3", "buyer", nil, http.StatusBadRequest},
		{"empty device token", http.MethodPost, "/api/v1/me/devices", "buyer", map[string]string{"token": " "}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.user, tc.body, nil)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSendMessageReplaysIdempotencyKey(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	headers := map[string]string{"Idempotency-Key": "k-1"}

	first := s.do(t, http.MethodPost, path, "buyer", map[string]string{"text": "هل ما زالت متاحة؟"}, headers)
	second := s.do(t, http.MethodPost, path, "buyer", map[string]string{"text": "هل ما زالت متاحة؟"}, headers)
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	a, b := decode[dto.ChatMessage](t, first), decode[dto.ChatMessage](t, second)
	if a.ID != b.ID || a.Seq != 1 {
		t.Fatalf("expected replayed message seq 1, got %+v and %+v", a, b)
	}

	unread := decode[dto.UnreadTotal](t, s.do(t, http.MethodGet, "/api/v1/me/unread", "seller", nil, nil))
	if unread.Unread != 1 {
		t.Fatalf("expected seller unread 1, got %d", unread.Unread)
	}
}

func TestMessagesPagingAndMarkRead(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	for _, text := range []string{"one", "two", "three"} {
		if rec := s.do(t, http.MethodPost, path, "buyer", map[string]string{"text": text}, nil); rec.Code != http.StatusCreated {
			t.Fatalf("send %q: %d", text, rec.Code)
		}
	}

	page := decode[dto.ChatMessageList](t, s.do(t, http.MethodGet, path+"?limit=2", "seller", nil, nil))
	if len(page.Items) != 2 || page.NextCursor != "2" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	rest := decode[dto.ChatMessageList](t, s.do(t, http.MethodGet, path+"?limit=2&after="+page.NextCursor, "seller", nil, nil))
	if len(rest.Items) != 1 || rest.Items[0].Text != "three" || rest.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", rest)
	}

	inbox := decode[dto.ConversationList](t, s.do(t, http.MethodGet, "/api/v1/conversations", "seller", nil, nil))
	if len(inbox.Items) != 1 || inbox.Items[0].Unread != 3 || inbox.Items[0].LastMessagePreview != "three" {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", "seller", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rec.Code)
	}
	if got := decode[dto.Conversation](t, rec); got.Unread != 0 {
		t.Fatalf("expected unread 0 after read, got %d", got.Unread)
	}
}

func TestDeviceRegistration(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodPost, "/api/v1/me/devices", "buyer", map[string]string{"token": "tok-a"}, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("register: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/me/devices", "buyer", map[string]string{"token": "tok-a"}, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("register twice: %d", rec.Code)
	}
	rec := s.do(t, http.MethodGet, "/api/v1/me/devices", "buyer", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if got := decode[dto.DeviceTokens](t, rec); len(got.Tokens) != 1 || got.Tokens[0] != "tok-a" {
		t.Fatalf("expected [tok-a], got %v", got.Tokens)
	}
	if rec := s.do(t, http.MethodDelete, "/api/v1/me/devices/tok-a", "buyer", nil, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("unregister: %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/devices", "buyer", nil, nil)
	if got := decode[dto.DeviceTokens](t, rec); got.Tokens == nil || len(got.Tokens) != 0 {
		t.Fatalf("expected empty token list, got %v", got.Tokens)
	}
	tokens, _ := s.devices.Tokens(t.Context(), "buyer")
	if len(tokens) != 0 {
		t.Fatalf("registry still holds %v", tokens)
	}
}

func TestRealtimeMessagesStream(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")
	path := "/api/v1/conversations/" + conv.ID + "/messages"
	s.do(t, http.MethodPost, path, "buyer", map[string]string{"text": "first"}, nil)

	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime/conversations/" + conv.ID + "/messages?access_token=seller"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer ws.Close()

	read := func() dto.Frame {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame dto.Frame
		if err := ws.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	snap := read()
	if snap.Type != dto.FrameMessage || snap.Message == nil || snap.Message.Text != "first" {
		t.Fatalf("unexpected snapshot frame: %+v", snap)
	}
	s.do(t, http.MethodPost, path, "buyer", map[string]string{"text": "second"}, nil)
	live := read()
	if live.Message == nil || live.Message.Seq != 2 || live.Message.Text != "second" {
		t.Fatalf("unexpected live frame: %+v", live)
	}
}

func TestRealtimeRejectsOutsider(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")

	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime/conversations/" + conv.ID + "/messages?access_token=intruder"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %+v", resp)
	}
}

func TestRealtimeInboxStream(t *testing.T) {
	s := newTestServer(t)
	conv := s.startConversation(t, "buyer")

	srv := httptest.NewServer(s.handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime/conversations?access_token=seller"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer ws.Close()

	// waitFor reads frames until match accepts one.
	waitFor := func(match func(dto.Frame) bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for {
			_ = ws.SetReadDeadline(deadline)
			var frame dto.Frame
			if err := ws.ReadJSON(&frame); err != nil {
				t.Fatalf("read frame: %v", err)
			}
			if match(frame) {
				return
			}
		}
	}

	waitFor(func(f dto.Frame) bool { return f.Type == dto.FrameUnread && f.Unread != nil && *f.Unread == 0 })
	s.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "buyer", map[string]string{"text": "مرحبا"}, nil)
	var sawUnread, sawSummary bool
	waitFor(func(f dto.Frame) bool {
		switch {
		case f.Type == dto.FrameUnread && f.Unread != nil && *f.Unread == 1:
			sawUnread = true
		case f.Type == dto.FrameConversation && f.Conversation != nil && f.Conversation.Seq == 1:
			sawSummary = f.Conversation.Unread == 1
		}
		return sawUnread && sawSummary
	})
}
