package core

import (
	"strconv"
)

// SignalID identifies a logical signal in the metadata directory.
type SignalID string

// Protocol tags the access kind of a descriptor or connection.
type Protocol string

const (
	ProtocolOpcUa    Protocol = "opcua"
	ProtocolInfluxDB Protocol = "influxdb"
)

// SignalType is the declared interpolation contract of a signal.
type SignalType string

const (
	SignalLinear SignalType = "LinearInterpolation"
	SignalHold   SignalType = "HoldObservations"
)

// Policy maps the signal type to its interpolation policy.
func (t SignalType) Policy() (InterpolationPolicy, error) {
	switch t {
	case SignalLinear:
		return Linear, nil
	case SignalHold:
		return PreviousValueHold, nil
	default:
		return 0, Errorf(ErrUnsupportedInterpolation, "signal type %q", string(t))
	}
}

// AccessDescriptor is the resolved, protocol-specific address of a signal's
// history. The set of implementations is closed: OpcUaAccess and
// TimeSeriesAccess.
type AccessDescriptor interface {
	Signal() SignalID
	Protocol() Protocol
	Endpoint() string
	Type() SignalType

	isAccessDescriptor()
}

// NodeIdentifier is an OPC UA node identifier, either numeric or string.
type NodeIdentifier struct {
	Numeric   uint32
	String    string
	IsNumeric bool
}

// NumericNode returns a numeric node identifier.
func NumericNode(id uint32) NodeIdentifier {
	return NodeIdentifier{Numeric: id, IsNumeric: true}
}

// StringNode returns a string node identifier.
func StringNode(id string) NodeIdentifier {
	return NodeIdentifier{String: id}
}

// Format renders the identifier in the "i=..." / "s=..." notation.
func (n NodeIdentifier) Format() string {
	if n.IsNumeric {
		return "i=" + strconv.FormatUint(uint64(n.Numeric), 10)
	}
	return "s=" + n.String
}

// OpcUaAccess addresses a historized OPC UA variable.
type OpcUaAccess struct {
	SignalID     SignalID
	EndpointURL  string
	NamespaceURI string
	Node         NodeIdentifier
	SignalType   SignalType
}

func (a OpcUaAccess) Signal() SignalID   { return a.SignalID }
func (a OpcUaAccess) Protocol() Protocol { return ProtocolOpcUa }
func (a OpcUaAccess) Endpoint() string   { return a.EndpointURL }
func (a OpcUaAccess) Type() SignalType   { return a.SignalType }
func (OpcUaAccess) isAccessDescriptor()  {}

// Tag is one key/value label of a time-series point.
type Tag struct {
	Key   string
	Value string
}

// TimeSeriesAccess addresses one field of an InfluxDB measurement. Tags keep
// the order they were declared in.
type TimeSeriesAccess struct {
	SignalID     SignalID
	EndpointURL  string
	Bucket       string
	Organization string
	Measurement  string
	Field        string
	Tags         []Tag
	SignalType   SignalType
}

func (a TimeSeriesAccess) Signal() SignalID   { return a.SignalID }
func (a TimeSeriesAccess) Protocol() Protocol { return ProtocolInfluxDB }
func (a TimeSeriesAccess) Endpoint() string   { return a.EndpointURL }
func (a TimeSeriesAccess) Type() SignalType   { return a.SignalType }
func (TimeSeriesAccess) isAccessDescriptor()  {}

// Credentials are carried opaquely from the directory to the adapters.
// Implementations: UsernamePassword, Token, Certificate.
type Credentials interface {
	Kind() string

	isCredentials()
}

// UsernamePassword authenticates with a user name and password.
type UsernamePassword struct {
	Username string
	Password string
}

func (UsernamePassword) Kind() string   { return "userpass" }
func (UsernamePassword) isCredentials() {}

// String hides the password.
func (c UsernamePassword) String() string { return "userpass(" + c.Username + ")" }

// Token authenticates with an API token.
type Token struct {
	Value string
}

func (Token) Kind() string   { return "token" }
func (Token) isCredentials() {}

// String hides the token.
func (Token) String() string { return "token(***)" }

// Certificate authenticates with an X.509 certificate and private key.
type Certificate struct {
	CertURI       string
	PrivateKeyURI string
}

func (Certificate) Kind() string   { return "certificate" }
func (Certificate) isCredentials() {}

func (c Certificate) String() string { return "certificate(" + c.CertURI + ")" }

// MessageSecurity describes OPC UA channel security.
type MessageSecurity struct {
	Policy string
	Mode   string
}

// Endpoint is a resolved connection: where to connect and how to authenticate.
// Organization and Bucket are only set for InfluxDB connections.
type Endpoint struct {
	URL          string
	Protocol     Protocol
	Organization string
	Bucket       string
	Security     MessageSecurity
	// Credentials is nil for anonymous access.
	Credentials Credentials
}
