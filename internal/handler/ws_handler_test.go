package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/service"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

func dialStream(t *testing.T, srv *httptest.Server, attemptID uuid.UUID, tok string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/attempts/" + attemptID.String() + "/stream?token=" + tok
	return websocket.DefaultDialer.Dial(url, nil)
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev map[string]interface{}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestAttemptStream(t *testing.T) {
	engine := newStubEngine("cand-1")
	r, v := testRouter(engine)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, _, err := dialStream(t, srv, engine.attempt, token(t, v, "cand-1"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if ev := readEvent(t, conn); ev["event"] != string(ws.EventState) {
		t.Fatalf("first event = %v, want state", ev)
	}

	conn.WriteJSON(ws.Request{Action: ws.ActionPing})
	if ev := readEvent(t, conn); ev["event"] != string(ws.EventPong) {
		t.Errorf("ping reply = %v", ev)
	}

	q := uuid.New()
	conn.WriteJSON(ws.Request{Action: ws.ActionAnswer, QuestionID: q.String(), Value: json.RawMessage(`"b"`)})
	if ev := readEvent(t, conn); ev["event"] != string(ws.EventSaved) || ev["question_id"] != q.String() {
		t.Errorf("answer reply = %v", ev)
	}
	if got := string(engine.answer(q)); got != `"b"` {
		t.Errorf("stored %s", got)
	}

	conn.WriteJSON(ws.Request{Action: ws.ActionReview, QuestionID: q.String()})
	if ev := readEvent(t, conn); ev["event"] != string(ws.EventReview) || ev["marked_for_review"] != true {
		t.Errorf("review reply = %v", ev)
	}

	conn.WriteJSON(ws.Request{Action: ws.ActionAnswer, QuestionID: "nope", Value: json.RawMessage(`"b"`)})
	if ev := readEvent(t, conn); ev["code"] != string(response.ErrInvalidID) {
		t.Errorf("bad question id reply = %v", ev)
	}

	conn.WriteJSON(ws.Request{Action: "teleport"})
	if ev := readEvent(t, conn); ev["event"] != string(ws.EventError) || ev["code"] != string(response.ErrInvalidPayload) {
		t.Errorf("unknown action reply = %v", ev)
	}

	conn.WriteJSON(ws.Request{Action: ws.ActionFinishSection, SectionID: uuid.NewString()})
	if ev := readEvent(t, conn); ev["event"] != string(ws.EventSectionFinished) || ev["next_section_id"] == nil {
		t.Errorf("finish section reply = %v", ev)
	}

	conn.WriteJSON(ws.Request{Action: ws.ActionFinalize})
	ev := readEvent(t, conn)
	result, _ := ev["result"].(map[string]interface{})
	if ev["event"] != string(ws.EventFinalized) || result["score"] != 7.0 {
		t.Errorf("finalize reply = %v", ev)
	}

	engine.setErr(service.ErrAttemptClosed)
	conn.WriteJSON(ws.Request{Action: ws.ActionAnswer, QuestionID: q.String(), Value: json.RawMessage(`"c"`)})
	if ev := readEvent(t, conn); ev["code"] != string(response.ErrAttemptClosed) {
		t.Errorf("closed attempt reply = %v", ev)
	}
}

func TestAttemptStreamRejectsForeignCandidate(t *testing.T) {
	engine := newStubEngine("cand-1")
	r, v := testRouter(engine)
	srv := httptest.NewServer(r)
	defer srv.Close()

	conn, resp, err := dialStream(t, srv, engine.attempt, token(t, v, "cand-2"))
	if err == nil {
		conn.Close()
		t.Fatal("dial must fail for a foreign attempt")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("handshake response = %v, want 403", resp)
	}
}

func TestUpgraderOriginCheck(t *testing.T) {
	up := buildUpgrader([]string{"https://exam.example.com"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://EXAM.example.com")
	if !up.CheckOrigin(req) {
		t.Error("configured origin must be accepted")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if up.CheckOrigin(req) {
		t.Error("unknown origin must be rejected")
	}
	if !buildUpgrader(nil).CheckOrigin(req) {
		t.Error("empty allow-list permits all origins")
	}
}
