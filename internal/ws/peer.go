package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-sync/internal/models"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// peer is one websocket connection. Only writePump writes to conn or closes it.
type peer struct {
	conn *websocket.Conn
	send chan models.Event
	done chan struct{}
	once sync.Once

	closeMsg []byte
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		conn: conn,
		send: make(chan models.Event, sendBuffer),
		done: make(chan struct{}),
	}
}

// offer queues ev without blocking. A peer that cannot keep up is dropped.
func (p *peer) offer(ev models.Event) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- ev:
		return true
	case <-p.done:
		return false
	default:
		p.shutdown(websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "slow consumer"))
		return false
	}
}

// shutdown asks writePump to send closeMsg, if any, and close the connection.
func (p *peer) shutdown(closeMsg []byte) {
	p.once.Do(func() {
		p.closeMsg = closeMsg
		close(p.done)
	})
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case ev := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(ev); err != nil {
				p.shutdown(nil)
				return
			}
		case <-ticker.C:
			if err := p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				p.shutdown(nil)
				return
			}
		case <-p.done:
			if p.closeMsg != nil {
				_ = p.conn.WriteControl(websocket.CloseMessage, p.closeMsg, time.Now().Add(writeWait))
			}
			return
		}
	}
}

// readPump discards client frames until the connection fails and returns the error.
func (p *peer) readPump() error {
	p.conn.SetReadLimit(4096)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			p.shutdown(nil)
			return err
		}
	}
}
