// rps_smoke plays one multi-player round against a running server: two
// fresh wallets sign in, join, play, request decryption and wait for the
// decrypted event on the websocket before ending the game.
package main

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"confidential_rps/internal/logger"
	"confidential_rps/internal/service"
	"confidential_rps/internal/ws"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type player struct {
	name  string
	key   *ecdsa.PrivateKey
	token string
}

type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path, token string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		return errors.Errorf("%s %s: %d %s (%s)", method, path, res.StatusCode, e.Error, e.Code)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

func (c *client) signIn(p *player) error {
	addr := crypto.PubkeyToAddress(p.key.PublicKey).Hex()
	var ch struct {
		Message string `json:"message"`
	}
	if err := c.call(http.MethodPost, "/api/v1/auth/challenge", "", map[string]string{"address": addr}, &ch); err != nil {
		return err
	}
	sig, err := service.SignChallenge(ch.Message, p.key)
	if err != nil {
		return err
	}
	var auth struct {
		Token string `json:"token"`
	}
	if err := c.call(http.MethodPost, "/api/v1/auth", "", map[string]string{"address": addr, "signature": sig}, &auth); err != nil {
		return err
	}
	p.token = auth.Token
	logger.Info("signed in", "player", p.name, "address", addr)
	return nil
}

func (c *client) play(game string, p *player, move string) error {
	var in struct {
		Handle string `json:"handle"`
		Proof  string `json:"proof"`
	}
	if err := c.call(http.MethodPost, "/api/v1/games/"+game+"/encrypt", p.token, map[string]string{"move": move}, &in); err != nil {
		return err
	}
	return c.call(http.MethodPost, "/api/v1/games/"+game+"/play", p.token, in, nil)
}

func waitForEvent(conn *websocket.Conn, eventType string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var env ws.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != ws.MsgEvent {
			continue
		}
		var e struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(env.Payload, &e)
		logger.Debug("event", "type", e.Type)
		if e.Type == eventType {
			return nil
		}
	}
	return errors.Errorf("no %s event within %s", eventType, timeout)
}

func run(host string, timeout time.Duration) error {
	c := &client{base: "http://" + host, http: &http.Client{Timeout: 10 * time.Second}}

	var players []*player
	for _, name := range []string{"A", "B"} {
		key, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		p := &player{name: name, key: key}
		if err := c.signIn(p); err != nil {
			return errors.Wrapf(err, "sign in %s", name)
		}
		players = append(players, p)
	}
	a, b := players[0], players[1]

	var snap struct {
		Address string `json:"address"`
	}
	if err := c.call(http.MethodPost, "/api/v1/games", a.token, nil, &snap); err != nil {
		return err
	}
	game := snap.Address
	logger.Info("game deployed", "game", game)

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?token=%s&game=%s", host, a.token, game), nil)
	if err != nil {
		return errors.Wrap(err, "dial ws")
	}
	defer conn.Close()

	for _, p := range players {
		if err := c.call(http.MethodPost, "/api/v1/games/"+game+"/join", p.token, nil, nil); err != nil {
			return err
		}
	}
	if err := c.play(game, a, "rock"); err != nil {
		return err
	}
	if err := c.play(game, b, "scissors"); err != nil {
		return err
	}
	if err := c.call(http.MethodPost, "/api/v1/games/"+game+"/decrypt", a.token, nil, nil); err != nil {
		return err
	}
	if err := waitForEvent(conn, "decrypted", timeout); err != nil {
		return err
	}

	var res struct {
		Result string `json:"result"`
	}
	if err := c.call(http.MethodPost, "/api/v1/games/"+game+"/end", b.token, nil, &res); err != nil {
		return err
	}
	if res.Result != "player1_wins" {
		return errors.Errorf("unexpected result %q", res.Result)
	}
	logger.Info("round finished", "result", res.Result)
	return nil
}

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"), false)

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	host := flag.String("host", "127.0.0.1:"+port, "server host:port")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to wait for the oracle")
	flag.Parse()

	if err := run(*host, *timeout); err != nil {
		logger.Fatal("smoke test failed", "error", err)
	}
	logger.Info("smoke test finished")
}
