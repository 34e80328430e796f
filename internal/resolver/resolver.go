// Package resolver turns signal ids into protocol-tagged access descriptors.
//
// Resolution walks signal -> access -> connection -> credentials through
// typed directory lookups. It never guesses: zero candidates is NotFound,
// more than one is AmbiguousAccess, and every failure is tagged with the hop
// it happened at. Nothing is cached; each call queries the directory again.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/newthinker/sigalign/internal/core"
	"github.com/newthinker/sigalign/internal/directory"
	"go.uber.org/zap"
)

// Resolver resolves signals and connections against a directory.
type Resolver struct {
	dir    directory.Directory
	logger *zap.Logger
}

// New creates a resolver.
func New(dir directory.Directory, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{dir: dir, logger: logger.Named("resolver")}
}

// Resolve returns the single historical access descriptor of a signal.
func (r *Resolver) Resolve(ctx context.Context, id core.SignalID) (core.AccessDescriptor, error) {
	return r.resolve(ctx, id, "")
}

// ResolveProtocol is like Resolve but only considers candidates of one
// protocol.
func (r *Resolver) ResolveProtocol(ctx context.Context, id core.SignalID, p core.Protocol) (core.AccessDescriptor, error) {
	return r.resolve(ctx, id, p)
}

func (r *Resolver) resolve(ctx context.Context, id core.SignalID, only core.Protocol) (core.AccessDescriptor, error) {
	sig, err := r.signal(ctx, id)
	if err != nil {
		return nil, err
	}

	access, err := r.historicalAccess(ctx, id, only)
	if err != nil {
		return nil, err
	}

	protocol := protocolOf(access.Protocol)
	if protocol == "" {
		return nil, core.Errorf(core.ErrMalformedDescriptor, "unknown access protocol %q", access.Protocol).
			ForSignal(id).AtHop(core.HopAccess)
	}

	conn, err := r.connection(ctx, access.Connection)
	if err != nil {
		return nil, fail(err, id)
	}
	if protocolOf(conn.Protocol) != protocol {
		return nil, core.Errorf(core.ErrMalformedDescriptor,
			"access protocol %q but connection %s is %q", access.Protocol, conn.URL, conn.Protocol).
			ForSignal(id).AtHop(core.HopConnection)
	}

	st := core.SignalType(sig.Type)
	var desc core.AccessDescriptor
	switch protocol {
	case core.ProtocolOpcUa:
		desc, err = opcUaDescriptor(id, st, access, conn)
	case core.ProtocolInfluxDB:
		desc, err = timeSeriesDescriptor(id, st, access, conn)
	default:
		err = core.Errorf(core.ErrMalformedDescriptor, "unknown access protocol %q", access.Protocol).AtHop(core.HopAccess)
	}
	if err != nil {
		return nil, fail(err, id)
	}

	r.logger.Debug("resolved signal",
		zap.String("signal", string(id)),
		zap.String("protocol", string(desc.Protocol())),
		zap.String("endpoint", desc.Endpoint()),
	)
	return desc, nil
}

// ResolveConnection returns the endpoint and credentials registered under url.
func (r *Resolver) ResolveConnection(ctx context.Context, url string) (core.Endpoint, error) {
	conn, err := r.connection(ctx, url)
	if err != nil {
		return core.Endpoint{}, err
	}
	creds, err := r.credentials(ctx, url)
	if err != nil {
		return core.Endpoint{}, err
	}

	ep := core.Endpoint{
		URL:          conn.URL,
		Protocol:     protocolOf(conn.Protocol),
		Organization: conn.Organization,
		Bucket:       conn.Bucket,
		Security: core.MessageSecurity{
			Policy: conn.Security.Policy,
			Mode:   conn.Security.Mode,
		},
		Credentials: creds,
	}
	if ep.Protocol == "" {
		return core.Endpoint{}, core.Errorf(core.ErrMalformedDescriptor,
			"connection %s has unknown protocol %q", url, conn.Protocol).AtHop(core.HopConnection)
	}
	return ep, nil
}

// signal is the first hop.
func (r *Resolver) signal(ctx context.Context, id core.SignalID) (*directory.SignalRecord, error) {
	sig, err := r.dir.Signal(ctx, id)
	if err != nil {
		if !errors.Is(err, directory.ErrNoRecord) {
			r.logger.Warn("directory signal lookup failed", zap.String("signal", string(id)), zap.Error(err))
		}
		return nil, core.WrapError(core.ErrNotFound, err).ForSignal(id).AtHop(core.HopSignal)
	}
	if sig.Type == "" {
		return nil, core.Errorf(core.ErrMalformedDescriptor, "signal has no signal type").
			ForSignal(id).AtHop(core.HopSignal)
	}
	return sig, nil
}

// historicalAccess is the second hop. only filters by protocol when set.
func (r *Resolver) historicalAccess(ctx context.Context, id core.SignalID, only core.Protocol) (directory.AccessRecord, error) {
	all, err := r.dir.HistoricalAccess(ctx, id)
	if err != nil {
		return directory.AccessRecord{}, core.WrapError(core.ErrNotFound, err).ForSignal(id).AtHop(core.HopAccess)
	}

	var candidates []directory.AccessRecord
	for _, a := range all {
		if only == "" || protocolOf(a.Protocol) == only {
			candidates = append(candidates, a)
		}
	}

	switch len(candidates) {
	case 0:
		if only != "" {
			return directory.AccessRecord{}, core.Errorf(core.ErrNotFound, "no %s historical access", only).
				ForSignal(id).AtHop(core.HopAccess)
		}
		return directory.AccessRecord{}, core.ErrNotFound.ForSignal(id).AtHop(core.HopAccess)
	case 1:
		return candidates[0], nil
	default:
		protocols := make([]string, len(candidates))
		for i, c := range candidates {
			protocols[i] = c.Protocol
		}
		return directory.AccessRecord{}, core.Errorf(core.ErrAmbiguousAccess,
			"%d candidates (%s)", len(candidates), strings.Join(protocols, ", ")).
			ForSignal(id).AtHop(core.HopAccess)
	}
}

// connection is the third hop.
func (r *Resolver) connection(ctx context.Context, url string) (directory.ConnectionRecord, error) {
	if url == "" {
		return directory.ConnectionRecord{}, core.Errorf(core.ErrMalformedDescriptor, "access has no connection url").
			AtHop(core.HopAccess)
	}
	conns, err := r.dir.Connections(ctx, url)
	if err != nil {
		return directory.ConnectionRecord{}, core.WrapError(core.ErrNotFound, err).AtHop(core.HopConnection)
	}
	switch len(conns) {
	case 0:
		return directory.ConnectionRecord{}, core.Errorf(core.ErrNotFound, "no connection %s", url).AtHop(core.HopConnection)
	case 1:
		return conns[0], nil
	default:
		return directory.ConnectionRecord{}, core.Errorf(core.ErrAmbiguousAccess,
			"%d connections registered for %s", len(conns), url).AtHop(core.HopConnection)
	}
}

// credentials is the last hop. No credentials means anonymous access.
func (r *Resolver) credentials(ctx context.Context, url string) (core.Credentials, error) {
	recs, err := r.dir.Credentials(ctx, url)
	if err != nil {
		return nil, core.WrapError(core.ErrNotFound, err).AtHop(core.HopCredential)
	}
	switch len(recs) {
	case 0:
		return nil, nil
	case 1:
		return credentialsOf(recs[0])
	default:
		return nil, core.Errorf(core.ErrAmbiguousAccess,
			"%d credentials attached to %s", len(recs), url).AtHop(core.HopCredential)
	}
}

func credentialsOf(rec directory.CredentialRecord) (core.Credentials, error) {
	switch strings.ToLower(rec.Kind) {
	case "userpass", "usernamepassword":
		if rec.Username == "" {
			return nil, malformedCredential("username missing")
		}
		return core.UsernamePassword{Username: rec.Username, Password: rec.Password}, nil
	case "token":
		if rec.Token == "" {
			return nil, malformedCredential("token missing")
		}
		return core.Token{Value: rec.Token}, nil
	case "certificate":
		if rec.CertURI == "" || rec.PrivateKeyURI == "" {
			return nil, malformedCredential("certificate and private key uris required")
		}
		return core.Certificate{CertURI: rec.CertURI, PrivateKeyURI: rec.PrivateKeyURI}, nil
	default:
		return nil, malformedCredential(fmt.Sprintf("unknown credential kind %q", rec.Kind))
	}
}

func malformedCredential(msg string) error {
	return core.Errorf(core.ErrMalformedDescriptor, "%s", msg).AtHop(core.HopCredential)
}

func opcUaDescriptor(id core.SignalID, st core.SignalType, a directory.AccessRecord, c directory.ConnectionRecord) (core.AccessDescriptor, error) {
	if a.NamespaceURI == "" {
		return nil, core.Errorf(core.ErrMalformedDescriptor, "opcua access without namespace uri").AtHop(core.HopAccess)
	}
	node, err := nodeIdentifier(a.Identifier, a.IdentifierType)
	if err != nil {
		return nil, core.WrapError(core.ErrMalformedDescriptor, err).AtHop(core.HopAccess)
	}
	return core.OpcUaAccess{
		SignalID:     id,
		EndpointURL:  c.URL,
		NamespaceURI: a.NamespaceURI,
		Node:         node,
		SignalType:   st,
	}, nil
}

func nodeIdentifier(raw, kind string) (core.NodeIdentifier, error) {
	if raw == "" {
		return core.NodeIdentifier{}, fmt.Errorf("opcua access without identifier")
	}
	switch strings.ToLower(kind) {
	case "integer", "int", "numeric", "i":
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return core.NodeIdentifier{}, fmt.Errorf("numeric identifier %q: %w", raw, err)
		}
		return core.NumericNode(uint32(n)), nil
	case "", "string", "s":
		return core.StringNode(raw), nil
	default:
		return core.NodeIdentifier{}, fmt.Errorf("unknown identifier type %q", kind)
	}
}

func timeSeriesDescriptor(id core.SignalID, st core.SignalType, a directory.AccessRecord, c directory.ConnectionRecord) (core.AccessDescriptor, error) {
	switch {
	case a.Measurement == "" || a.Field == "":
		return nil, core.Errorf(core.ErrMalformedDescriptor, "influxdb access needs measurement and field").AtHop(core.HopAccess)
	case c.Bucket == "" || c.Organization == "":
		return nil, core.Errorf(core.ErrMalformedDescriptor, "influxdb connection %s needs bucket and organization", c.URL).
			AtHop(core.HopConnection)
	}

	tags := make([]core.Tag, 0, len(a.Tags))
	for _, t := range a.Tags {
		if t.Key == "" {
			return nil, core.Errorf(core.ErrMalformedDescriptor, "influxdb tag without key").AtHop(core.HopAccess)
		}
		tags = append(tags, core.Tag{Key: t.Key, Value: t.Value})
	}

	return core.TimeSeriesAccess{
		SignalID:     id,
		EndpointURL:  c.URL,
		Bucket:       c.Bucket,
		Organization: c.Organization,
		Measurement:  a.Measurement,
		Field:        a.Field,
		Tags:         tags,
		SignalType:   st,
	}, nil
}

func protocolOf(s string) core.Protocol {
	switch strings.ToLower(s) {
	case "opcua", "opc-ua", "opc.tcp":
		return core.ProtocolOpcUa
	case "influxdb", "influx":
		return core.ProtocolInfluxDB
	default:
		return ""
	}
}

// fail attributes a hop-tagged error to a signal.
func fail(err error, id core.SignalID) error {
	if e, ok := core.AsError(err); ok {
		return e.ForSignal(id)
	}
	return err
}
