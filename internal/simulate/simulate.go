// Package simulate drives a running rolloff daemon end to end: it seeds
// collections with deliberately tied entities over HTTP, answers draw
// solicitations over websocket as remote owners, and verifies that every
// collection produces a winner event.
package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/rolloff/pkg/logger"
)

// Config controls a simulation run.
type Config struct {
	BaseURL     string
	Collections int
	GroupSize   int
	Owners      int
	Timeout     time.Duration
	Seed        int64
}

// entityPayload mirrors the daemon's add-entity request body.
type entityPayload struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Rank  *float64 `json:"rank,omitempty"`
	Owner string   `json:"owner,omitempty"`
	Seed  float64  `json:"seed"`
}

// wireMessage covers both directions of the daemon's websocket protocol.
type wireMessage struct {
	Type    string `json:"type"`
	Owner   string `json:"owner,omitempty"`
	Request *struct {
		Owner     string `json:"owner"`
		ContestID string `json:"contest_id"`
		EntityID  string `json:"entity_id"`
		Faces     int    `json:"faces"`
	} `json:"request,omitempty"`
	Event *struct {
		Name         string  `json:"name"`
		CollectionID string  `json:"collection_id,omitempty"`
		WinnerID     string  `json:"winner_id,omitempty"`
		NewRank      float64 `json:"new_rank,omitempty"`
	} `json:"event,omitempty"`
}

// Run executes the simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Named("simulate")
	rng := rand.New(rand.NewSource(cfg.Seed))

	wsURL, err := websocketURL(cfg.BaseURL)
	if err != nil {
		return err
	}

	// Observer connection collects winner events per collection.
	winners := make(chan string, cfg.Collections)
	observer, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("observer dial failed: %w", err)
	}
	defer func() { _ = observer.Close() }()
	go watchWinners(ctx, observer, winners)

	// Owner connections answer draw solicitations with random totals.
	var wg sync.WaitGroup
	ownerCtx, cancelOwners := context.WithCancel(ctx)
	defer cancelOwners()
	ownerNames := make([]string, 0, cfg.Owners)
	for i := 0; i < cfg.Owners; i++ {
		name := fmt.Sprintf("owner-%d", i)
		ownerNames = append(ownerNames, name)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?owner="+url.QueryEscape(name), nil)
		if err != nil {
			return fmt.Errorf("owner dial failed: %w", err)
		}
		wg.Add(1)
		go func(c *websocket.Conn, seed int64) {
			defer wg.Done()
			defer func() { _ = c.Close() }()
			answerDraws(ownerCtx, c, rand.New(rand.NewSource(seed)))
		}(conn, rng.Int63())
	}

	// Seed collections: every entity shares the same rank so each
	// collection holds exactly one tie group.
	client := &http.Client{Timeout: cfg.Timeout}
	collections := make(map[string]bool, cfg.Collections)
	for i := 0; i < cfg.Collections; i++ {
		collectionID := "sim-" + uuid.NewString()
		collections[collectionID] = false
		rank := float64(rng.Intn(90) + 10)
		for j := 0; j < cfg.GroupSize; j++ {
			owner := ""
			if len(ownerNames) > 0 && j%2 == 0 {
				owner = ownerNames[rng.Intn(len(ownerNames))]
			}
			payload := entityPayload{
				ID:    fmt.Sprintf("%s-e%d", collectionID, j),
				Name:  fmt.Sprintf("entity %d", j),
				Rank:  &rank,
				Owner: owner,
				Seed:  float64(j),
			}
			if err := postEntity(ctx, client, cfg.BaseURL, collectionID, payload); err != nil {
				return err
			}
		}
	}
	log.Info(ctx, "collections seeded",
		logger.Int("collections", cfg.Collections),
		logger.Int("groupSize", cfg.GroupSize),
	)

	// Wait for one winner per collection.
	deadline := time.NewTimer(cfg.Timeout)
	defer deadline.Stop()
	remaining := cfg.Collections
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out with %d of %d collections unresolved", remaining, cfg.Collections)
		case collectionID := <-winners:
			done, ok := collections[collectionID]
			if !ok || done {
				continue
			}
			collections[collectionID] = true
			remaining--
			log.Info(ctx, "collection resolved",
				logger.String("collectionID", collectionID),
				logger.Int("remaining", remaining),
			)
		}
	}

	cancelOwners()
	wg.Wait()
	log.Info(ctx, "simulation complete", logger.Int("collections", cfg.Collections))
	return nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func postEntity(ctx context.Context, client *http.Client, baseURL, collectionID string, payload entityPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal entity: %w", err)
	}
	endpoint := fmt.Sprintf("%s/collections/%s/entities", strings.TrimRight(baseURL, "/"), collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("add entity: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("add entity: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// watchWinners forwards winner events' collection ids until the connection
// closes.
func watchWinners(ctx context.Context, conn *websocket.Conn, winners chan<- string) {
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Event == nil || msg.Event.Name != "rolloff.winner" {
			continue
		}
		select {
		case winners <- msg.Event.CollectionID:
		case <-ctx.Done():
			return
		}
	}
}

// answerDraws responds to every draw solicitation with a uniform roll.
func answerDraws(ctx context.Context, conn *websocket.Conn, rng *rand.Rand) {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type != "draw.request" || msg.Request == nil {
			continue
		}
		faces := msg.Request.Faces
		if faces < 2 {
			faces = 20
		}
		reply := map[string]any{
			"type":       "draw",
			"contest_id": msg.Request.ContestID,
			"entity_id":  msg.Request.EntityID,
			"faces":      faces,
			"total":      rng.Intn(faces) + 1,
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
