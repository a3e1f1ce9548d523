// Package model defines the shared data types that flow between the
// encryptor, wire codec, file service, and searchable index: container
// metadata, access-control lists, and the layer plaintexts the three-layer
// encryptor produces (spec.md §3, §4.4).
package model

import (
	"time"

	"github.com/cloud10922/zkim/internal/constants"
)

// ACL is a metadata access-control list: each slot names the user ids
// permitted that operation. Enforcement beyond this field is out of scope
// (spec.md §1 Non-goals).
type ACL struct {
	Read   []string `json:"read,omitempty"`
	Write  []string `json:"write,omitempty"`
	Delete []string `json:"delete,omitempty"`
}

// Metadata is the Container metadata dictionary (spec.md §3). A reader must
// not trust any field here before the file signature verifies.
type Metadata struct {
	FileName        string            `json:"fileName"`
	MIMEType        string            `json:"mimeType"`
	Tags            []string          `json:"tags,omitempty"`
	UserID          string            `json:"userId"`
	CreatedAt       time.Time         `json:"createdAt"`
	ACL             ACL               `json:"acl"`
	RetentionPolicy string            `json:"retentionPolicy,omitempty"`
	CustomFields    map[string]string `json:"customFields,omitempty"`
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	cp := m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	cp.ACL = ACL{
		Read:   append([]string(nil), m.ACL.Read...),
		Write:  append([]string(nil), m.ACL.Write...),
		Delete: append([]string(nil), m.ACL.Delete...),
	}
	if m.CustomFields != nil {
		cp.CustomFields = make(map[string]string, len(m.CustomFields))
		for k, v := range m.CustomFields {
			cp.CustomFields[k] = v
		}
	}
	return cp
}

// CanRead reports whether userID may read a container carrying this
// metadata: the owner always may, otherwise userID must appear in ACL.Read.
func (m Metadata) CanRead(userID string) bool {
	if userID == m.UserID {
		return true
	}
	for _, u := range m.ACL.Read {
		if u == userID {
			return true
		}
	}
	return false
}

// CanWrite reports whether userID may modify a container's metadata: the
// owner always may, otherwise userID must appear in ACL.Write.
func (m Metadata) CanWrite(userID string) bool {
	if userID == m.UserID {
		return true
	}
	for _, u := range m.ACL.Write {
		if u == userID {
			return true
		}
	}
	return false
}

// UserLayerPlaintext is the canonical payload sealed under the user layer
// key: the file id, the content key, the metadata the holder of user_key is
// entitled to see in full, and the compression type the chunk plaintexts
// were produced under (needed to reassemble them; only a holder of
// user_key can ever reach the content key that opens a chunk in the first
// place, so recording it here rather than in the fixed header leaks
// nothing new).
type UserLayerPlaintext struct {
	FileID          string                    `json:"fileId"`
	ContentKey      []byte                    `json:"contentKey"`
	Metadata        Metadata                  `json:"metadata"`
	CompressionUsed constants.CompressionType `json:"compressionUsed"`
}

// PlatformMetadata is the search-visible subset of Metadata sealed under
// the platform layer key: no content key, no payload, nothing that is not
// needed to index or authorize a search.
type PlatformMetadata struct {
	FileName     string            `json:"fileName"`
	MIMEType     string            `json:"mimeType"`
	Tags         []string          `json:"tags,omitempty"`
	UserID       string            `json:"userId"`
	ACL          ACL               `json:"acl"`
	CustomFields map[string]string `json:"customFields,omitempty"`
}

// PlatformLayerPlaintext is the canonical payload sealed under the
// platform layer key.
type PlatformLayerPlaintext struct {
	Metadata PlatformMetadata `json:"metadata"`
}

// ToPlatformMetadata projects the search-visible subset of m.
func (m Metadata) ToPlatformMetadata() PlatformMetadata {
	pm := PlatformMetadata{
		FileName: m.FileName,
		MIMEType: m.MIMEType,
		UserID:   m.UserID,
		ACL: ACL{
			Read:   append([]string(nil), m.ACL.Read...),
			Write:  append([]string(nil), m.ACL.Write...),
			Delete: append([]string(nil), m.ACL.Delete...),
		},
	}
	if m.Tags != nil {
		pm.Tags = append([]string(nil), m.Tags...)
	}
	if m.CustomFields != nil {
		pm.CustomFields = make(map[string]string, len(m.CustomFields))
		for k, v := range m.CustomFields {
			pm.CustomFields[k] = v
		}
	}
	return pm
}
