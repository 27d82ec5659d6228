package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/config"
)

// PairOptions configures a pairing attempt.
type PairOptions struct {
	ServerURL       string
	Name            string
	ProtocolVersion string
	Proxy           *config.ProxyConfig
}

// PairResult holds the credentials issued by an approved pairing.
type PairResult struct {
	ClientID   string
	Token      string
	ServerName string
}

// Pair connects to the server, submits a pairing request, and blocks until
// an operator approves or denies the station. Approval is human-paced so
// there is no read deadline; cancel the context to give up.
func Pair(ctx context.Context, opts PairOptions, logger zerolog.Logger) (*PairResult, error) {
	endpoint, err := websocketURL(opts.ServerURL)
	if err != nil {
		return nil, err
	}

	dialer, err := NewDialer(opts.Proxy)
	if err != nil {
		return nil, err
	}

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to %s: %w (HTTP %s)", endpoint, err, resp.Status)
		}
		return nil, fmt.Errorf("connect to %s: %w", endpoint, err)
	}
	defer conn.Close()

	// ReadMessage has no context support; closing the connection is how a
	// canceled context unblocks it.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	protocolVersion := opts.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = config.DefaultAgentProtocolVersion
	}

	request := pairingRequestFrame{
		Type:            msgTypePairingRequest,
		ProtocolVersion: protocolVersion,
		ClientName:      opts.Name,
	}
	if err := conn.WriteJSON(request); err != nil {
		return nil, fmt.Errorf("send pairing request: %w", err)
	}

	logger.Info().Str("server", opts.ServerURL).Str("name", opts.Name).Msg("pairing request sent")

	var clientID string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("pairing canceled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("read pairing response: %w", err)
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("parse server message: %w", err)
		}

		switch env.Type {
		case msgTypePairingPending:
			var pending pairingPendingFrame
			if err := json.Unmarshal(data, &pending); err != nil {
				return nil, fmt.Errorf("parse pairing_pending: %w", err)
			}
			clientID = pending.ClientID
			logger.Info().
				Str("client_id", clientID).
				Msg("pairing pending; approve this station in the admin console")

		case msgTypePairingApproved:
			var approved pairingApprovedFrame
			if err := json.Unmarshal(data, &approved); err != nil {
				return nil, fmt.Errorf("parse pairing_approved: %w", err)
			}
			return &PairResult{
				ClientID:   clientID,
				Token:      approved.Token,
				ServerName: approved.ServerName,
			}, nil

		case msgTypePairingDenied:
			return nil, fmt.Errorf("pairing denied by operator")

		case msgTypeError:
			var serverErr errorFrame
			if err := json.Unmarshal(data, &serverErr); err != nil {
				return nil, fmt.Errorf("parse error message: %w", err)
			}
			return nil, fmt.Errorf("server rejected pairing: %s (%s)", serverErr.Message, serverErr.Code)

		default:
			logger.Debug().Str("type", env.Type).Msg("ignoring unexpected message during pairing")
		}
	}
}

// websocketURL converts the configured server URL into the print-service
// WebSocket endpoint.
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws/print-service"
	}

	return u.String(), nil
}
