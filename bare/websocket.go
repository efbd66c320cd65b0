package bare

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// connectMessage is the first message of a websocket session.
type connectMessage struct {
	Type           string            `json:"type"`
	Remote         string            `json:"remote"`
	Protocols      []string          `json:"protocols"`
	Headers        map[string]string `json:"headers"`
	ForwardHeaders []string          `json:"forwardHeaders"`
}

// openMessage answers a connectMessage once the remote is connected.
type openMessage struct {
	Type       string   `json:"type"`
	Protocol   string   `json:"protocol"`
	SetCookies []string `json:"setCookies"`
}

// controlTimeout bounds writing a single control frame.
const controlTimeout = 5 * time.Second

// close codes which end a session without being reported as errors
var expectedCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseAbnormalClosure,
	websocket.CloseNoStatusReceived,
}

// isHandshakeHeader reports whether the websocket handshake manages the
// named header itself.
func isHandshakeHeader(name string) bool {
	name = http.CanonicalHeaderKey(name)
	return name == "Upgrade" || name == "Connection" || strings.HasPrefix(name, "Sec-Websocket-")
}

// upgradeHeader copies the headers already set on a response, such as the
// request id, for the upgrader to include in its 101 response.
func upgradeHeader(pending http.Header) http.Header {
	h := make(http.Header, len(pending))
	for name, values := range pending {
		if !isHandshakeHeader(name) {
			h[name] = append([]string(nil), values...)
		}
	}
	return h
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	log := s.log(r)

	clientConn, err := s.upgrader.Upgrade(w, r, upgradeHeader(w.Header()))
	if err != nil {
		// the upgrader has already responded
		log.Warnf("could not upgrade client connection: %v", err)
		return
	}

	connect, err := readConnect(clientConn)
	if err != nil {
		log.Warnf("invalid connect message: %v", err)
		closeWith(clientConn, websocket.ClosePolicyViolation, "invalid connect message")
		return
	}
	remote, err := parseRemoteURL(connect.Remote, "ws", "wss")
	if err != nil {
		log.Warnf("invalid remote: %v", err)
		closeWith(clientConn, websocket.ClosePolicyViolation, "invalid remote")
		return
	}
	log = log.WithField("remote", remote.String())

	reqHeader := make(http.Header)
	for name, value := range connect.Headers {
		reqHeader.Set(name, value)
	}
	for _, name := range connect.ForwardHeaders {
		if contains(forbiddenForwardHeaders, strings.ToLower(name)) {
			log.Warnf("forbidden forward header %q", name)
			closeWith(clientConn, websocket.ClosePolicyViolation, "forbidden header "+name)
			return
		}
	}
	forward := append(append([]string{}, defaultForwardHeaders...), connect.ForwardHeaders...)
	for _, name := range forward {
		if values := r.Header.Values(name); len(values) > 0 {
			reqHeader[http.CanonicalHeaderKey(name)] = values
		}
	}
	for name := range reqHeader {
		if isHandshakeHeader(name) {
			reqHeader.Del(name)
		}
	}

	dialer := *s.dialer
	dialer.Subprotocols = connect.Protocols
	remoteConn, res, err := dialer.DialContext(r.Context(), remote.String(), reqHeader)
	if err != nil {
		e := connectionError(err)
		log.WithField("code", e.Code).Warnf("could not dial remote: %v", err)
		closeWith(clientConn, websocket.CloseInternalServerErr, e.Code)
		return
	}

	open := openMessage{
		Type:       "open",
		Protocol:   remoteConn.Subprotocol(),
		SetCookies: []string{},
	}
	if res != nil {
		if cookies := res.Header.Values("Set-Cookie"); len(cookies) > 0 {
			open.SetCookies = cookies
		}
	}
	if err := clientConn.WriteJSON(open); err != nil {
		log.Warnf("could not send open message: %v", err)
		_ = remoteConn.Close()
		_ = clientConn.Close()
		return
	}

	log.Debug("bridging websocket session")
	if err := bridge(remoteConn, clientConn); err != nil {
		log.Warnf("websocket session ended: %v", err)
	}
}

func readConnect(conn *websocket.Conn) (*connectMessage, error) {
	if err := conn.SetReadDeadline(time.Now().Add(connectTimeout)); err != nil {
		return nil, err
	}
	mtype, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if mtype != websocket.TextMessage {
		return nil, errors.New("connect message must be text")
	}
	var msg connectMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "decoding connect message")
	}
	if msg.Type != "connect" {
		return nil, errors.Errorf("unexpected message type %q", msg.Type)
	}
	return &msg, conn.SetReadDeadline(time.Time{})
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = writeControl(conn, websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
	_ = conn.Close()
}

func writeControl(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteControl(messageType, data, time.Now().Add(controlTimeout))
}

// bridge pumps messages between remote and client until either direction
// stops, then closes both connections.  It returns the error which ended
// the session, if that was not an ordinary closure.
func bridge(remote, client *websocket.Conn) error {
	relayControlFrames(remote, client)
	relayControlFrames(client, remote)

	ended := make(chan error, 2)
	go func() { ended <- pump(client, remote) }()
	go func() { ended <- pump(remote, client) }()

	err := <-ended
	_ = remote.Close()
	_ = client.Close()
	// the other direction fails on the closed connections
	<-ended
	return err
}

// relayControlFrames forwards pings, pongs and close frames read from src to
// dst, so that each peer sees the other's keepalives and close code.
func relayControlFrames(src, dst *websocket.Conn) {
	src.SetPingHandler(func(data string) error {
		return writeControl(dst, websocket.PingMessage, []byte(data))
	})
	src.SetPongHandler(func(data string) error {
		return writeControl(dst, websocket.PongMessage, []byte(data))
	})
	src.SetCloseHandler(func(code int, text string) error {
		if code == websocket.CloseNoStatusReceived {
			code, text = websocket.CloseNormalClosure, ""
		}
		_ = writeControl(dst, websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
		return nil
	})
}

// pump copies whole messages from src to dst, preserving their type.
func pump(dst, src *websocket.Conn) error {
	for {
		messageType, r, err := src.NextReader()
		if err != nil {
			return unexpectedClose(err)
		}
		w, err := dst.NextWriter(messageType)
		if err != nil {
			return unexpectedClose(err)
		}
		if _, err := io.Copy(w, r); err != nil {
			_ = w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return unexpectedClose(err)
		}
	}
}

// unexpectedClose drops errors which only mean the session is over.
func unexpectedClose(err error) error {
	if websocket.IsUnexpectedCloseError(err, expectedCloseCodes...) {
		return err
	}
	return nil
}
