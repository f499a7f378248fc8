package httpserver

import "net/http"

const headerConversationID = "X-Conversation-Id"

// httpSink пишет стрим в ответ и флашит после каждого куска.
type httpSink struct {
	w              http.ResponseWriter
	rc             *http.ResponseController
	started        bool
	conversationID string
}

func newHTTPSink(w http.ResponseWriter) *httpSink {
	return &httpSink{w: w, rc: http.NewResponseController(w)}
}

func (s *httpSink) Start(conversationID string) {
	s.started = true
	s.conversationID = conversationID

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set(headerConversationID, conversationID)
	s.w.WriteHeader(http.StatusOK)
	_ = s.rc.Flush()
}

func (s *httpSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *httpSink) Flush() {
	_ = s.rc.Flush()
}
