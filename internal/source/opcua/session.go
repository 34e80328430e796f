package opcua

import (
	"context"
	"encoding/pem"
	"net/url"
	"os"
	"strings"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/newthinker/sigalign/internal/core"
)

// session is the part of an OPC UA client session the adapter uses.
type session interface {
	NamespaceArray(ctx context.Context) ([]string, error)
	HistoryReadRawModified(ctx context.Context, nodes []*ua.HistoryReadValueID, details *ua.ReadRawModifiedDetails) (*ua.HistoryReadResponse, error)
	ReleaseContinuationPoints(ctx context.Context, nodes []*ua.HistoryReadValueID) error
	Close(ctx context.Context) error
}

type dialFunc func(ctx context.Context, ep core.Endpoint, opts Options) (session, error)

// clientSession is a connected gopcua client.
type clientSession struct {
	*opcua.Client
}

func (c clientSession) ReleaseContinuationPoints(ctx context.Context, nodes []*ua.HistoryReadValueID) error {
	return c.Send(ctx, releaseRequest(nodes), func(interface{}) error { return nil })
}

// releaseRequest asks the server to drop the continuation points of nodes
// without returning data.
func releaseRequest(nodes []*ua.HistoryReadValueID) *ua.HistoryReadRequest {
	return &ua.HistoryReadRequest{
		HistoryReadDetails:        ua.NewExtensionObject(&ua.ReadRawModifiedDetails{}),
		TimestampsToReturn:        ua.TimestampsToReturnBoth,
		ReleaseContinuationPoints: true,
		NodesToRead:               nodes,
	}
}

func dial(ctx context.Context, ep core.Endpoint, opts Options) (session, error) {
	clientOpts, err := clientOptions(ep, opts)
	if err != nil {
		return nil, err
	}

	client, err := opcua.NewClient(ep.URL, clientOpts...)
	if err != nil {
		return nil, core.WrapError(core.ErrConnection, err)
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return clientSession{client}, nil
}

func clientOptions(ep core.Endpoint, opts Options) ([]opcua.Option, error) {
	sec := ep.Security
	if sec.Policy == "" {
		sec.Policy = opts.Security.Policy
	}
	if sec.Mode == "" {
		sec.Mode = opts.Security.Mode
	}

	clientOpts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(sec.Mode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(sec.Policy)),
		opcua.ApplicationName(opts.ApplicationName),
	}
	if opts.RequestTimeout > 0 {
		clientOpts = append(clientOpts, opcua.RequestTimeout(opts.RequestTimeout))
	}

	switch c := ep.Credentials.(type) {
	case nil:
		clientOpts = append(clientOpts, opcua.AuthAnonymous())
	case core.UsernamePassword:
		clientOpts = append(clientOpts, opcua.AuthUsername(c.Username, c.Password))
	case core.Certificate:
		certPath, keyPath := localPath(c.CertURI), localPath(c.PrivateKeyURI)
		cert, err := loadDER(certPath)
		if err != nil {
			return nil, core.WrapError(core.ErrAuth, err)
		}
		clientOpts = append(clientOpts,
			opcua.CertificateFile(certPath),
			opcua.PrivateKeyFile(keyPath),
			opcua.AuthCertificate(cert),
		)
	default:
		return nil, core.Errorf(core.ErrAuth, "%s credentials cannot authenticate an opcua session", c.Kind())
	}
	return clientOpts, nil
}

// localPath turns a file:// URI into a path. Anything else is used as is.
func localPath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return u.Path
}

// loadDER reads a certificate, decoding PEM if needed.
func loadDER(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if block, _ := pem.Decode(data); block != nil {
		return block.Bytes, nil
	}
	return data, nil
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}
