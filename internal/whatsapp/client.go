package whatsapp

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// State models the transport connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosing      State = "closing"
)

// reconnectDelay is the pause before re-entering Connecting after an
// unexpected close.
const reconnectDelay = 3 * time.Second

// MessageHandler consumes live message events.
type MessageHandler func(ctx context.Context, evt *events.Message)

// Client wraps the whatsmeow transport: session store, pairing QR handling,
// and a supervisor that reconnects after unexpected closes unless the
// session was logged out.
type Client struct {
	wa      *whatsmeow.Client
	handler MessageHandler

	mu          sync.Mutex
	state       State
	pairingCode string
	loggedOut   bool
}

// NewClient opens the durable session store (sqlite3 or postgres, per
// config) and prepares the transport client. Connect is separate so the
// OAuth flow can finish first.
func NewClient(dialect, dsn string, handler MessageHandler) (*Client, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	container, err := sqlstore.New(context.Background(), dialect, dsn, waLog.Stdout("Database", "ERROR", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	device, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to load device from session store: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Stdout("Client", "ERROR", true))
	// The supervisor below owns reconnection.
	wa.EnableAutoReconnect = false

	c := &Client{
		wa:      wa,
		handler: handler,
		state:   StateDisconnected,
	}
	wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect starts the transport. For an unpaired session the pairing QR is
// rendered in the terminal and kept available for the control surface.
func (c *Client) Connect() error {
	c.setState(StateConnecting)

	if c.wa.Store.ID == nil {
		qrChan, err := c.wa.GetQRChannel(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get QR channel: %w", err)
		}
		go c.consumeQR(qrChan)
	}

	if err := c.wa.Connect(); err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}
	return nil
}

// Disconnect closes the transport permanently; the supervisor will not
// reconnect afterwards.
func (c *Client) Disconnect() {
	c.setState(StateClosing)
	c.wa.Disconnect()
	c.setState(StateDisconnected)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PairingCode returns the most recent pairing QR code, or "" when the
// session is already paired.
func (c *Client) PairingCode() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pairingCode
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.mu.Lock()
			c.pairingCode = evt.Code
			c.mu.Unlock()
			log.Info().Msg("Scan this QR code with WhatsApp")
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
		case "success":
			c.mu.Lock()
			c.pairingCode = ""
			c.mu.Unlock()
			log.Info().Msg("WhatsApp pairing successful")
		default:
			log.Debug().Str("event", evt.Event).Msg("QR channel event")
		}
	}
}

func (c *Client) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		go c.handler(context.Background(), v)
	case *events.Connected:
		c.mu.Lock()
		c.state = StateConnected
		c.pairingCode = ""
		c.mu.Unlock()
		log.Info().Msg("WhatsApp connected, listening for messages")
	case *events.PairSuccess:
		log.Info().Str("jid", v.ID.String()).Msg("Paired with WhatsApp account")
	case *events.LoggedOut:
		c.mu.Lock()
		c.loggedOut = true
		c.state = StateDisconnected
		c.mu.Unlock()
		log.Warn().Str("reason", v.Reason.String()).Msg("Logged out from WhatsApp, not reconnecting")
	case *events.StreamReplaced:
		log.Warn().Msg("WhatsApp stream replaced by another session")
		c.scheduleReconnect()
	case *events.Disconnected:
		log.Warn().Msg("WhatsApp connection closed")
		c.scheduleReconnect()
	}
}

// scheduleReconnect re-enters Connecting after a delay, unless the close was
// deliberate (Closing) or the session was logged out.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.state == StateClosing || c.loggedOut {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	time.AfterFunc(reconnectDelay, func() {
		c.mu.Lock()
		abort := c.state == StateClosing || c.loggedOut
		c.mu.Unlock()
		if abort {
			return
		}
		log.Info().Msg("Reconnecting to WhatsApp")
		if err := c.wa.Connect(); err != nil {
			log.Error().Err(err).Msg("Reconnect attempt failed")
			c.scheduleReconnect()
		}
	})
}
