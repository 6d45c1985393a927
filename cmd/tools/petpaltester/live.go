package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	liveAudio    string
	liveOut      string
	liveText     string
	liveDogName  string
	liveChunk    int
	liveInterval time.Duration
	liveIdle     time.Duration
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Stream PCM audio over /ws/live and save the reply",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateLiveFlags(); err != nil {
			return err
		}

		wsURL, err := toWebSocketURL(baseURL, "/ws/live")
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), wsURL, nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", wsURL, err)
		}
		defer conn.Close()

		if err := waitReady(conn); err != nil {
			return err
		}

		if liveDogName != "" {
			if err := conn.WriteJSON(map[string]string{"type": "config", "dog_name": liveDogName}); err != nil {
				return err
			}
		}

		received := make(chan error, 1)
		var audio []byte
		go func() {
			received <- readReplies(conn, cmd.OutOrStdout(), &audio)
		}()

		if liveAudio != "" {
			if err := sendAudio(conn, liveAudio, liveChunk); err != nil {
				return err
			}
		}
		if liveText != "" {
			if err := conn.WriteJSON(map[string]string{"type": "text", "data": liveText}); err != nil {
				return err
			}
		}

		err = <-received
		_ = conn.WriteJSON(map[string]string{"type": "stop"})

		if liveOut != "" && len(audio) > 0 {
			if werr := os.WriteFile(liveOut, audio, 0o644); werr != nil {
				return werr
			}
			log.Printf("[live] wrote %d bytes of audio to %s", len(audio), liveOut)
		}
		return err
	},
}

func validateLiveFlags() error {
	if liveAudio == "" && liveText == "" {
		return errors.New("either --audio or --text is required")
	}
	if liveChunk < 1 {
		return fmt.Errorf("--chunk must be positive, got %d", liveChunk)
	}
	return nil
}

func toWebSocketURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String(), nil
}

func waitReady(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(15 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("waiting for ready: %w", err)
	}

	switch gjson.GetBytes(data, "type").String() {
	case "ready":
		log.Printf("[live] session ready id=%s", gjson.GetBytes(data, "session_id").String())
		return nil
	case "error":
		return fmt.Errorf("server error: %s", gjson.GetBytes(data, "message").String())
	default:
		return fmt.Errorf("unexpected first frame: %s", data)
	}
}

// sendAudio streams the file in fixed-size chunks at a steady pace.
func sendAudio(conn *websocket.Conn, path string, chunk int) error {
	if chunk < 1 {
		return fmt.Errorf("invalid chunk size %d", chunk)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, chunk)
	sent := 0
	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			frame := map[string]string{"type": "audio", "data": base64.StdEncoding.EncodeToString(buf[:n])}
			if werr := conn.WriteJSON(frame); werr != nil {
				return werr
			}
			sent += n
			time.Sleep(liveInterval)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	log.Printf("[live] sent %d bytes of audio", sent)
	return nil
}

// readReplies prints transcripts and collects audio until the turn completes
// or the server goes quiet.
func readReplies(conn *websocket.Conn, out io.Writer, audio *[]byte) error {
	for {
		conn.SetReadDeadline(time.Now().Add(liveIdle))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}

		frame := gjson.ParseBytes(data)
		if verbose && frame.Get("type").String() != "audio" {
			log.Printf("[live] %s", data)
		}

		switch frame.Get("type").String() {
		case "audio":
			chunk, err := base64.StdEncoding.DecodeString(frame.Get("data").String())
			if err != nil {
				return fmt.Errorf("decode audio: %w", err)
			}
			*audio = append(*audio, chunk...)
		case "transcript":
			fmt.Fprintf(out, "[%s] %s\n", frame.Get("role").String(), frame.Get("text").String())
		case "response":
			fmt.Fprintf(out, "[assistant] %s\n", frame.Get("text").String())
		case "error":
			return fmt.Errorf("server error: %s", frame.Get("message").String())
		}
	}
}

func init() {
	liveCmd.Flags().StringVar(&liveAudio, "audio", "", "raw 16-bit PCM input file")
	liveCmd.Flags().StringVar(&liveOut, "out", "", "file for the returned PCM audio")
	liveCmd.Flags().StringVar(&liveText, "text", "", "text to send after the audio")
	liveCmd.Flags().StringVar(&liveDogName, "dog-name", "", "dog name sent as a config frame")
	liveCmd.Flags().IntVar(&liveChunk, "chunk", 3200, "audio bytes per frame")
	liveCmd.Flags().DurationVar(&liveInterval, "interval", 100*time.Millisecond, "delay between audio frames")
	liveCmd.Flags().DurationVar(&liveIdle, "idle", 5*time.Second, "stop after this long without server frames")
}
