package live

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/petpal/health-backend/internal/handler/wsconn"
	"github.com/petpal/health-backend/internal/model/live"
	"github.com/petpal/health-backend/internal/service/relay"
)

// wsClient adapts a websocket connection to relay.Client.
type wsClient struct {
	conn        *wsconn.Conn
	binaryAudio bool
}

var _ relay.Client = (*wsClient)(nil)

// Read decodes the next frame. Binary frames are raw PCM audio.
func (c *wsClient) Read(ctx context.Context) (live.ClientMessage, error) {
	mt, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if mt == websocket.BinaryMessage {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty audio frame", live.ErrMalformed)
		}
		return live.AudioChunk{Data: data}, nil
	}
	return live.DecodeClient(data)
}

// Send writes one outbound message. Audio goes out as a binary frame when the
// endpoint speaks raw audio.
func (c *wsClient) Send(ctx context.Context, msg live.ServerMessage) error {
	if audio, ok := msg.(live.Audio); ok && c.binaryAudio {
		return c.conn.WriteBinary(audio.Data)
	}

	data, err := live.EncodeServer(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteText(data)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}
