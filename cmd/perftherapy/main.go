// Command perftherapy replays synthetic conversation turns against a
// running server and reports per-turn latency, for load and regression
// checks on the speech pipeline.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pujahabibi/ai-psychologist-assistant/internal/protocol"
)

type options struct {
	baseURL        string
	language       string
	turns          int
	voice          bool
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type wsEnvelope struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
	Text   string `json:"text"`
}

var defaultUtterances = []string{
	"Akhir-akhir ini saya sulit tidur dan sering gelisah.",
	"Pekerjaan membuat saya merasa kewalahan setiap hari.",
	"Saya ingin belajar mengelola kecemasan saya.",
	"Hari ini terasa sedikit lebih baik dari kemarin.",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perftherapy: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perftherapy: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw string
	var interTurnMS int
	var turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "server base URL")
	flag.StringVar(&cfg.language, "language", "id", "session language")
	flag.IntVar(&cfg.turns, "turns", 10, "number of turns to replay")
	flag.BoolVar(&cfg.voice, "voice", false, "replay voice turns (tts synthesis + audio upload) instead of text")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 180, "delay between turns in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 30000, "timeout waiting for the reply per turn in milliseconds")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print replay progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	if strings.TrimSpace(textsRaw) == "" {
		cfg.texts = append([]string(nil), defaultUtterances...)
	} else {
		for _, part := range strings.Split(textsRaw, "|") {
			if t := strings.TrimSpace(part); t != "" {
				cfg.texts = append(cfg.texts, t)
			}
		}
		if len(cfg.texts) == 0 {
			return options{}, fmt.Errorf("texts produced no non-empty utterances")
		}
	}
	return cfg, nil
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 60 * time.Second}
	sessionID, err := createSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = endSession(context.Background(), httpClient, cfg.baseURL, sessionID)
	}()

	if cfg.verbose {
		fmt.Printf("perftherapy: session=%s turns=%d mode=%s\n", sessionID, cfg.turns, modeName(cfg.voice))
	}

	var clips [][]byte
	if cfg.voice {
		clips, err = synthClips(ctx, httpClient, cfg)
		if err != nil {
			return fmt.Errorf("prepare utterance audio: %w", err)
		}
	}

	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replyCh := make(chan string, 32)
	readErrCh := make(chan error, 1)
	go readLoop(conn, cfg.voice, replyCh, readErrCh, cfg.verbose)

	latencies := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		select {
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		default:
		}

		start := time.Now()
		if cfg.voice {
			clip := clips[i%len(clips)]
			err = conn.WriteJSON(protocol.ClientAudio{
				Type:      protocol.TypeClientAudio,
				SessionID: sessionID,
				WAVBase64: base64.StdEncoding.EncodeToString(clip),
			})
		} else {
			text := cfg.texts[i%len(cfg.texts)]
			err = conn.WriteJSON(protocol.ClientText{
				Type:      protocol.TypeClientText,
				SessionID: sessionID,
				Text:      text,
				Language:  cfg.language,
			})
		}
		if err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}

		if err := awaitReply(replyCh, readErrCh, cfg.turnTimeout); err != nil {
			return fmt.Errorf("turn %d await reply: %w", i+1, err)
		}
		elapsed := time.Since(start)
		latencies = append(latencies, elapsed)
		if cfg.verbose {
			fmt.Printf("perftherapy: turn %d/%d %s\n", i+1, cfg.turns, elapsed.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	printSummary(latencies)
	return nil
}

func modeName(voice bool) string {
	if voice {
		return "voice"
	}
	return "text"
}

func createSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	payload, err := json.Marshal(map[string]string{"language": cfg.language})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.baseURL+"/v1/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return out.SessionID, nil
}

func endSession(ctx context.Context, client *http.Client, baseURL, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

// synthClips turns each utterance into WAV bytes via the direct tts
// endpoint, cached per unique text.
func synthClips(ctx context.Context, client *http.Client, cfg options) ([][]byte, error) {
	cache := make(map[string][]byte, len(cfg.texts))
	out := make([][]byte, 0, len(cfg.texts))
	for _, text := range cfg.texts {
		if existing, ok := cache[text]; ok {
			out = append(out, existing)
			continue
		}
		clip, err := synthClip(ctx, client, cfg.baseURL, text)
		if err != nil {
			return nil, err
		}
		cache[text] = clip
		out = append(out, clip)
	}
	return out, nil
}

func synthClip(ctx context.Context, client *http.Client, baseURL, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/speech/tts", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 40<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts %q HTTP %d: %s", text, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("tts %q produced no audio", text)
	}
	return body, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/therapy/ws"
	return u.String(), nil
}

// readLoop signals turn completion: text turns complete on assistant_text,
// voice turns on assistant_audio.
func readLoop(conn *websocket.Conn, voice bool, replyCh chan<- string, readErrCh chan<- error, verbose bool) {
	doneType := string(protocol.TypeAssistantText)
	if voice {
		doneType = string(protocol.TypeAssistantAudio)
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case doneType:
			select {
			case replyCh <- env.Text:
			default:
			}
		case string(protocol.TypeErrorEvent):
			if verbose {
				fmt.Fprintf(os.Stderr, "perftherapy: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func awaitReply(replyCh <-chan string, readErrCh <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-replyCh:
		return nil
	case err := <-readErrCh:
		return err
	case <-timer.C:
		return fmt.Errorf("timeout after %s", timeout)
	}
}

func printSummary(latencies []time.Duration) {
	if len(latencies) == 0 {
		return
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	avg := total / time.Duration(len(sorted))
	p50 := sorted[len(sorted)/2]
	p95 := sorted[(len(sorted)*95)/100]
	if (len(sorted)*95)/100 >= len(sorted) {
		p95 = sorted[len(sorted)-1]
	}

	fmt.Printf("perftherapy: turns=%d avg=%s p50=%s p95=%s max=%s\n",
		len(sorted),
		avg.Round(time.Millisecond),
		p50.Round(time.Millisecond),
		p95.Round(time.Millisecond),
		sorted[len(sorted)-1].Round(time.Millisecond),
	)
}
