// Package metadata holds the headers carried by messages crossing a gateway
// binding and the keys trust reserves among them.
package metadata

import (
	"maps"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Reserved header keys.
const (
	// KeyCorrelationID ties a reply to the request that caused it.
	KeyCorrelationID = "correlation_id"
	// KeyReqRepID names the service that produced a reply.
	KeyReqRepID = "reqrep_id"
	// KeyRequestUUID is the Watermill UUID of the request a reply answers.
	KeyRequestUUID = "request_uuid"
	// KeyContentType describes the payload encoding.
	KeyContentType = "content_type"
)

// Metadata represents the headers carried alongside a message.
type Metadata map[string]string

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	maps.Copy(cloned, m)
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	maps.Copy(cloned, entries)
	return cloned
}

// CorrelationID returns the correlation id header, if any.
func (m Metadata) CorrelationID() string {
	return m[KeyCorrelationID]
}

// Reply builds the headers of a reply to a request carrying m. Only the
// correlation id is carried over; request specific headers are not.
func (m Metadata) Reply(reqrepID, requestUUID, contentType string) Metadata {
	reply := Metadata{
		KeyReqRepID:    reqrepID,
		KeyRequestUUID: requestUUID,
	}
	if id := m.CorrelationID(); id != "" {
		reply[KeyCorrelationID] = id
	}
	if contentType != "" {
		reply[KeyContentType] = contentType
	}
	return reply
}

// FromWatermill copies the headers of a Watermill message.
func FromWatermill(md message.Metadata) Metadata {
	out := make(Metadata, len(md))
	maps.Copy(out, md)
	return out
}

// ToWatermill copies m into a Watermill header map.
func (m Metadata) ToWatermill() message.Metadata {
	out := make(message.Metadata, len(m))
	maps.Copy(out, m)
	return out
}
