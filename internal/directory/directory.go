// Package directory is the metadata directory signals are described in.
//
// The Directory interface exposes the small closed set of lookups the
// resolver needs (signal, its historical access entries, connections by URL,
// credentials by connection URL). Records are returned as stored; validation
// and normalization into access descriptors is the resolver's job.
package directory

import (
	"context"
	"errors"

	"github.com/newthinker/sigalign/internal/core"
)

// ErrNoRecord is returned when a lookup key is unknown to the directory.
var ErrNoRecord = errors.New("directory: no record")

// Directory answers the lookups of the signal -> access -> connection ->
// credentials chain.
type Directory interface {
	// Signal returns the description of a signal.
	Signal(ctx context.Context, id core.SignalID) (*SignalRecord, error)

	// HistoricalAccess returns every historical access candidate of a signal.
	HistoricalAccess(ctx context.Context, id core.SignalID) ([]AccessRecord, error)

	// Connections returns the connection records registered under url.
	Connections(ctx context.Context, url string) ([]ConnectionRecord, error)

	// Credentials returns the credentials attached to the connection at url.
	Credentials(ctx context.Context, url string) ([]CredentialRecord, error)
}

// Lister enumerates signals, for discovery.
type Lister interface {
	Signals(ctx context.Context) ([]SignalRecord, error)
}

// SignalRecord describes one logical signal.
type SignalRecord struct {
	ID       core.SignalID     `yaml:"id"`
	Label    string            `yaml:"label"`
	Asset    string            `yaml:"asset"`
	Type     string            `yaml:"type"`
	Unit     string            `yaml:"unit"`
	Datatype string            `yaml:"datatype"`
	Metadata map[string]string `yaml:"metadata"`

	Historical []AccessRecord `yaml:"historical"`
	// NearRealTime access is described but not used for history reads.
	NearRealTime []AccessRecord `yaml:"nrt"`
}

// AccessRecord is a protocol-specific access entry. Only the fields of its
// protocol are meaningful.
type AccessRecord struct {
	Protocol   string `yaml:"protocol"`
	Connection string `yaml:"connection"`

	// OPC UA
	NamespaceURI   string `yaml:"namespace_uri"`
	Identifier     string `yaml:"identifier"`
	IdentifierType string `yaml:"identifier_type"`

	// InfluxDB
	Measurement string      `yaml:"measurement"`
	Field       string      `yaml:"field"`
	Tags        []TagRecord `yaml:"tags"`
}

// TagRecord is one InfluxDB tag.
type TagRecord struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ConnectionRecord describes a source endpoint.
type ConnectionRecord struct {
	URL          string             `yaml:"url"`
	Protocol     string             `yaml:"protocol"`
	Bucket       string             `yaml:"bucket"`
	Organization string             `yaml:"organization"`
	Security     SecurityRecord     `yaml:"security"`
	Credentials  []CredentialRecord `yaml:"credentials"`
}

// SecurityRecord is OPC UA message security.
type SecurityRecord struct {
	Policy string `yaml:"policy"`
	Mode   string `yaml:"mode"`
}

// CredentialRecord holds one set of credentials. Kind is "userpass",
// "token" or "certificate".
type CredentialRecord struct {
	Kind          string `yaml:"kind"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	Token         string `yaml:"token"`
	CertURI       string `yaml:"cert_uri"`
	PrivateKeyURI string `yaml:"private_key_uri"`
}
