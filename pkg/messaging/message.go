package messaging

import (
	"bytes"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DeliveryMode mirrors the AMQP delivery-mode property.
type DeliveryMode uint8

const (
	DeliveryTransient  DeliveryMode = 1
	DeliveryPersistent DeliveryMode = 2
)

// Header is a single string header. Headers keep insertion order and may repeat.
type Header struct {
	Key   string
	Value string
}

// Properties are the basic message properties carried alongside the body.
type Properties struct {
	ContentType     string
	ContentEncoding string
	DeliveryMode    DeliveryMode
	Priority        uint8
	CorrelationID   string
	ReplyTo         string
	MessageID       string
	Timestamp       time.Time
	UserID          string
	AppID           string
}

// Message is an immutable payload container. Accessors return copies, so a Message
// received by one consumer can never be mutated through another.
type Message struct {
	seq      uint64
	body     []byte
	props    Properties
	headers  []Header
	exchange string
	queue    string
}

// MessageOption configures a Message at construction time.
type MessageOption func(*Message)

// NewMessage creates a message holding a copy of body.
func NewMessage(body []byte, opts ...MessageOption) Message {
	m := Message{
		body:  bytes.Clone(body),
		props: Properties{DeliveryMode: DeliveryTransient},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// NewTextMessage creates a message whose body is the given string.
func NewTextMessage(body string, opts ...MessageOption) Message {
	return NewMessage([]byte(body), opts...)
}

// WithContentType sets the MIME type of the body.
func WithContentType(v string) MessageOption {
	return func(m *Message) { m.props.ContentType = v }
}

// WithContentEncoding sets the body encoding, e.g. "gzip".
func WithContentEncoding(v string) MessageOption {
	return func(m *Message) { m.props.ContentEncoding = v }
}

// WithDeliveryMode overrides the default DeliveryTransient.
func WithDeliveryMode(v DeliveryMode) MessageOption {
	return func(m *Message) { m.props.DeliveryMode = v }
}

// WithPriority sets the message priority. The broker does not reorder by it.
func WithPriority(v uint8) MessageOption {
	return func(m *Message) { m.props.Priority = v }
}

// WithCorrelationID sets the id used to match replies to requests.
func WithCorrelationID(v string) MessageOption {
	return func(m *Message) { m.props.CorrelationID = v }
}

// WithReplyTo names the intended recipient. Communicators created with
// WithDirectedOnly skip messages addressed to somebody else.
func WithReplyTo(v string) MessageOption {
	return func(m *Message) { m.props.ReplyTo = v }
}

// WithMessageID sets the message id. Communicator.Publish generates one when empty.
func WithMessageID(v string) MessageOption {
	return func(m *Message) { m.props.MessageID = v }
}

// WithTimestamp sets the creation time. Communicator.Publish uses time.Now when zero.
func WithTimestamp(v time.Time) MessageOption {
	return func(m *Message) { m.props.Timestamp = v }
}

// WithUserID sets the sender. Communicator.Publish uses its identity when empty.
func WithUserID(v string) MessageOption {
	return func(m *Message) { m.props.UserID = v }
}

// WithHeader appends a string header.
func WithHeader(key, value string) MessageOption {
	return func(m *Message) { m.headers = append(m.headers, Header{Key: key, Value: value}) }
}

// WithIntHeader appends a header holding the decimal form of value.
func WithIntHeader(key string, value int) MessageOption {
	return WithHeader(key, strconv.Itoa(value))
}

// Seq is the sequence id assigned by the broker at publish time. Zero means unpublished.
func (m Message) Seq() uint64 { return m.seq }

// Body returns a copy of the payload.
func (m Message) Body() []byte { return bytes.Clone(m.body) }

// BodyString returns the payload as a string.
func (m Message) BodyString() string { return string(m.body) }

// Len returns the payload size in bytes.
func (m Message) Len() int { return len(m.body) }

func (m Message) Properties() Properties { return m.props }

// Headers returns a copy of the headers in insertion order.
func (m Message) Headers() []Header { return slices.Clone(m.headers) }

// Header returns the first header with the given key.
func (m Message) Header(key string) (string, bool) {
	for _, h := range m.headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Exchange is the exchange the message was delivered through, empty until published.
func (m Message) Exchange() string { return m.exchange }

// Queue is the queue the message was delivered into, empty until published.
func (m Message) Queue() string { return m.queue }

// DumpStr renders the message for diagnostics. The output is not a serialization format.
func (m Message) DumpStr() string {
	var b strings.Builder
	entry := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}

	exchange := m.exchange
	if exchange == "" {
		exchange = "N/A"
	}
	var ts int64
	if !m.props.Timestamp.IsZero() {
		ts = m.props.Timestamp.Unix()
	}

	entry("Exchange", exchange)
	entry("Queue", m.queue)
	entry("Sequence", strconv.FormatUint(m.seq, 10))
	entry("--", "--")
	entry("Body", string(m.body))
	entry("Content-Type", m.props.ContentType)
	entry("Content-Encoding", m.props.ContentEncoding)
	entry("Delivery-Mode", strconv.Itoa(int(m.props.DeliveryMode)))
	entry("Priority", strconv.Itoa(int(m.props.Priority)))
	entry("Correlation-ID", m.props.CorrelationID)
	entry("Reply-To", m.props.ReplyTo)
	entry("Message-ID", m.props.MessageID)
	entry("Timestamp", strconv.FormatInt(ts, 10))
	entry("User-ID", m.props.UserID)
	entry("App-ID", m.props.AppID)
	for _, h := range m.headers {
		entry("Header["+h.Key+"]", h.Value)
	}
	return b.String()
}

// String implements fmt.Stringer with a short single-line form.
func (m Message) String() string {
	return "message[" + strconv.FormatUint(m.seq, 10) + "] " + m.exchange + "/" + m.queue +
		" (" + strconv.Itoa(len(m.body)) + " bytes)"
}

// clone returns a deep copy so that each queue owns its own instance.
func (m Message) clone() Message {
	m.body = bytes.Clone(m.body)
	m.headers = slices.Clone(m.headers)
	return m
}

// routed returns a copy of m stamped with its delivery coordinates.
func (m Message) routed(seq uint64, exchange, queue string) Message {
	c := m.clone()
	c.seq = seq
	c.exchange = exchange
	c.queue = queue
	return c
}
