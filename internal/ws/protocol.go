package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/timeviewer/backend/internal/session"
)

var errMissingApp = errors.New(`missing "app" field`)

// reportMessage is the reporter's wire payload. App is a pointer so a
// missing field can be told apart from the idle value "".
type reportMessage struct {
	App   *string `json:"app"`
	Title string  `json:"title"`
	URL   *string `json:"url"`
}

// decodeActivity validates one reporter frame.
func decodeActivity(messageType int, data []byte) (session.Activity, error) {
	if messageType != websocket.TextMessage {
		return session.Activity{}, session.ProtocolError("read frame", fmt.Errorf("unexpected message type %d", messageType))
	}

	var msg reportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return session.Activity{}, session.ProtocolError("decode activity", err)
	}
	if msg.App == nil {
		return session.Activity{}, session.ProtocolError("decode activity", errMissingApp)
	}
	return session.Activity{App: *msg.App, Title: msg.Title, URL: msg.URL}, nil
}

// closeCodeFor picks the close frame code sent before dropping a connection
// because of err.
func closeCodeFor(err error) int {
	var e *session.Error
	if !errors.As(err, &e) {
		return websocket.CloseInternalServerErr
	}
	switch {
	case e.Kind == session.KindProtocol && e.Op == "read frame":
		return websocket.CloseUnsupportedData
	case e.Kind == session.KindProtocol:
		return websocket.CloseInvalidFramePayloadData
	default:
		return websocket.CloseInternalServerErr
	}
}
