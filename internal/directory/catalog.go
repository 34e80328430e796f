package directory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/newthinker/sigalign/internal/core"
	"gopkg.in/yaml.v3"
)

// Catalog is an in-memory Directory, usually loaded from a YAML file.
type Catalog struct {
	mu          sync.RWMutex
	signals     map[core.SignalID]SignalRecord
	connections map[string][]ConnectionRecord
}

// catalogFile is the on-disk layout.
type catalogFile struct {
	Signals     []SignalRecord     `yaml:"signals"`
	Connections []ConnectionRecord `yaml:"connections"`
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		signals:     make(map[core.SignalID]SignalRecord),
		connections: make(map[string][]ConnectionRecord),
	}
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes YAML catalog data. Credential values of the form
// ${NAME} are replaced by the environment variable NAME.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	c := NewCatalog()
	for _, s := range f.Signals {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog signal without id")
		}
		if _, dup := c.signals[s.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog signal %q", s.ID)
		}
		c.AddSignal(s)
	}
	for _, conn := range f.Connections {
		if conn.URL == "" {
			return nil, fmt.Errorf("catalog connection without url")
		}
		for i := range conn.Credentials {
			expandCredential(&conn.Credentials[i])
		}
		c.AddConnection(conn)
	}
	return c, nil
}

func expandEnv(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}"))
	}
	return val
}

func expandCredential(c *CredentialRecord) {
	c.Username = expandEnv(c.Username)
	c.Password = expandEnv(c.Password)
	c.Token = expandEnv(c.Token)
	c.CertURI = expandEnv(c.CertURI)
	c.PrivateKeyURI = expandEnv(c.PrivateKeyURI)
}

// AddSignal adds or replaces a signal description.
func (c *Catalog) AddSignal(s SignalRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[s.ID] = s
}

// AddConnection registers a connection record under its URL. Several
// records may share one URL; the resolver rejects that as ambiguous.
func (c *Catalog) AddConnection(conn ConnectionRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connections[conn.URL] = append(c.connections[conn.URL], conn)
}

// RemoveConnection drops every record registered under url.
func (c *Catalog) RemoveConnection(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connections, url)
}

func (c *Catalog) Signal(_ context.Context, id core.SignalID) (*SignalRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal %q: %w", id, ErrNoRecord)
	}
	return &s, nil
}

func (c *Catalog) HistoricalAccess(ctx context.Context, id core.SignalID) ([]AccessRecord, error) {
	s, err := c.Signal(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]AccessRecord, len(s.Historical))
	copy(out, s.Historical)
	return out, nil
}

func (c *Catalog) Connections(_ context.Context, url string) ([]ConnectionRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conns := c.connections[url]
	out := make([]ConnectionRecord, len(conns))
	copy(out, conns)
	return out, nil
}

func (c *Catalog) Credentials(_ context.Context, url string) ([]CredentialRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []CredentialRecord
	for _, conn := range c.connections[url] {
		out = append(out, conn.Credentials...)
	}
	return out, nil
}

// Signals returns all signals ordered by id.
func (c *Catalog) Signals(_ context.Context) ([]SignalRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SignalRecord, 0, len(c.signals))
	for _, s := range c.signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ Directory = (*Catalog)(nil)
	_ Lister    = (*Catalog)(nil)
)
