package gemini

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// credential pairs one API key's client with its request pacer.
type credential struct {
	client  *genai.Client
	limiter *rate.Limiter
}

// keyRing is a round-robin pool of credentials. Workers read the current
// credential; rate-limit errors advance the ring so the next attempt uses a
// different key.
type keyRing struct {
	mu    sync.Mutex
	creds []*credential
	idx   int
}

func newKeyRing(ctx context.Context, keys []string, rps float64) (*keyRing, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no API keys configured")
	}
	ring := &keyRing{}
	for _, key := range keys {
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			ring.close()
			return nil, fmt.Errorf("create genai client: %w", err)
		}
		ring.creds = append(ring.creds, &credential{
			client:  client,
			limiter: rate.NewLimiter(rate.Limit(rps), 1),
		})
	}
	return ring, nil
}

// current returns the credential the next request should use.
func (r *keyRing) current() *credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creds[r.idx]
}

// advance rotates to the next credential. Safe to call from any worker.
func (r *keyRing) advance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idx = (r.idx + 1) % len(r.creds)
}

func (r *keyRing) size() int {
	return len(r.creds)
}

func (r *keyRing) close() {
	for _, c := range r.creds {
		c.client.Close()
	}
}
