package upstream

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// StrategyKind selects how requests leave the process
type StrategyKind string

const (
	StrategyDirect   StrategyKind = "direct"
	StrategyProxy    StrategyKind = "proxy"
	StrategyRotating StrategyKind = "rotating"
)

// DefaultUserAgent is sent when no user agents are configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Identity is the egress route and client fingerprint used for one call.
type Identity struct {
	ProxyURL  string
	UserAgent string
}

// Strategy hands out the identity for each upstream call.
type Strategy interface {
	Kind() StrategyKind
	Next() Identity
}

// NewStrategy builds the configured strategy. proxy needs exactly one proxy
// after normalisation; rotating cycles through every proxy and user agent
// pair, or only user agents when no proxy is given.
func NewStrategy(kind StrategyKind, proxies, userAgents []string) (Strategy, error) {
	proxies = normalizeList(proxies)
	userAgents = normalizeList(userAgents)
	if len(userAgents) == 0 {
		userAgents = []string{DefaultUserAgent}
	}

	switch StrategyKind(strings.ToLower(strings.TrimSpace(string(kind)))) {
	case "", StrategyDirect:
		return fixedStrategy{kind: StrategyDirect, id: Identity{UserAgent: userAgents[0]}}, nil
	case StrategyProxy:
		if len(proxies) != 1 {
			return nil, fmt.Errorf("proxy strategy needs exactly one proxy, got %d", len(proxies))
		}
		return fixedStrategy{kind: StrategyProxy, id: Identity{ProxyURL: proxies[0], UserAgent: userAgents[0]}}, nil
	case StrategyRotating:
		return newRotatingStrategy(proxies, userAgents), nil
	default:
		return nil, fmt.Errorf("unknown transport strategy %q", kind)
	}
}

type fixedStrategy struct {
	kind StrategyKind
	id   Identity
}

func (s fixedStrategy) Kind() StrategyKind { return s.kind }
func (s fixedStrategy) Next() Identity     { return s.id }

type rotatingStrategy struct {
	pool []Identity
	next atomic.Uint64
}

func newRotatingStrategy(proxies, userAgents []string) *rotatingStrategy {
	if len(proxies) == 0 {
		proxies = []string{""}
	}
	pool := make([]Identity, 0, len(proxies)*len(userAgents))
	for _, p := range proxies {
		for _, ua := range userAgents {
			pool = append(pool, Identity{ProxyURL: p, UserAgent: ua})
		}
	}
	return &rotatingStrategy{pool: pool}
}

func (s *rotatingStrategy) Kind() StrategyKind { return StrategyRotating }

func (s *rotatingStrategy) Next() Identity {
	n := s.next.Add(1) - 1
	return s.pool[n%uint64(len(s.pool))]
}

func normalizeList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		v := strings.TrimSpace(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
