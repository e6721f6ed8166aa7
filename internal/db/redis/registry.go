package redis

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Registry hands out stores that share one physical client per connection identity
// (normalized address set, username, password and database). Stores differing only in
// TextSearch share the client. Built once at startup and closed at exit; safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	clients map[string]*conn
	stores  map[storeKey]*Store
	dial    func(Config) (rueidis.Client, error)
	newID   func() string
	logger  *zap.Logger
	closed  bool
}

type conn struct {
	client rueidis.Client
	alias  string
}

type storeKey struct {
	conn       string
	textSearch bool
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		clients: make(map[string]*conn),
		stores:  make(map[storeKey]*Store),
		dial:    dial,
		newID:   func() string { return uuid.NewString() },
		logger:  logger,
	}
}

// Store returns the store for cfg, connecting on first use.
func (r *Registry) Store(cfg Config) (*Store, error) {
	key := storeKey{conn: connectionKey(cfg), textSearch: cfg.TextSearch}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("registry is closed")
	}
	if s, ok := r.stores[key]; ok {
		r.logger.Debug("Reusing connection", zap.String("alias", s.alias), zap.Strings("addrs", cfg.Addrs))
		return s, nil
	}

	c, ok := r.clients[key.conn]
	if !ok {
		client, err := r.dial(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", strings.Join(cfg.Addrs, ","), err)
		}
		c = &conn{client: client, alias: r.newID()}
		r.clients[key.conn] = c
		r.logger.Info("Connected to vector database",
			zap.String("alias", c.alias),
			zap.Strings("addrs", cfg.Addrs),
		)
	}

	s := &Store{client: c.client, alias: c.alias, textSearch: cfg.TextSearch}
	r.stores[key] = s
	return s, nil
}

// Len returns the number of physical connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close closes every client once.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for key, c := range r.clients {
		c.client.Close()
		r.logger.Info("Closed vector database connection", zap.String("alias", c.alias))
		delete(r.clients, key)
	}
	clear(r.stores)
}

// connectionKey identifies a physical connection. Equal address sets in any order and
// case share a client; the password is included as a digest.
func connectionKey(cfg Config) string {
	addrs := make([]string, 0, len(cfg.Addrs))
	for _, a := range cfg.Addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			addrs = append(addrs, a)
		}
	}
	slices.Sort(addrs)
	addrs = slices.Compact(addrs)

	secret := sha256.Sum256([]byte(cfg.Password))
	return strings.Join([]string{
		strings.Join(addrs, ","),
		cfg.Username,
		hex.EncodeToString(secret[:8]),
		strconv.Itoa(cfg.DB),
	}, "/")
}
