package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleMetadata() Metadata {
	return Metadata{
		FileName: "report.pdf",
		MIMEType: "application/pdf",
		Tags:     []string{"finance", "q3"},
		UserID:   "alice",
		ACL:      ACL{Read: []string{"bob"}, Write: []string{"carol"}},
		CustomFields: map[string]string{
			"department": "finance",
		},
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := sampleMetadata()
	cp := original.Clone()

	cp.Tags[0] = "mutated"
	cp.ACL.Read[0] = "mutated"
	cp.CustomFields["department"] = "mutated"

	assert.Equal(t, "finance", original.Tags[0])
	assert.Equal(t, "bob", original.ACL.Read[0])
	assert.Equal(t, "finance", original.CustomFields["department"])
}

func TestCloneNilFieldsStayNil(t *testing.T) {
	m := Metadata{FileName: "empty.txt", UserID: "alice"}
	cp := m.Clone()
	assert.Nil(t, cp.Tags)
	assert.Nil(t, cp.CustomFields)
}

func TestCanReadOwner(t *testing.T) {
	m := sampleMetadata()
	assert.True(t, m.CanRead("alice"))
}

func TestCanReadACLGrantee(t *testing.T) {
	m := sampleMetadata()
	assert.True(t, m.CanRead("bob"))
}

func TestCanReadDeniedForStranger(t *testing.T) {
	m := sampleMetadata()
	assert.False(t, m.CanRead("mallory"))
}

func TestCanReadEmptyACL(t *testing.T) {
	m := Metadata{UserID: "alice"}
	assert.True(t, m.CanRead("alice"))
	assert.False(t, m.CanRead("bob"))
}

func TestCanWriteOwner(t *testing.T) {
	m := sampleMetadata()
	assert.True(t, m.CanWrite("alice"))
}

func TestCanWriteACLGrantee(t *testing.T) {
	m := sampleMetadata()
	assert.True(t, m.CanWrite("carol"))
}

func TestCanWriteDeniedForReadOnlyGrantee(t *testing.T) {
	m := sampleMetadata()
	assert.False(t, m.CanWrite("bob"), "a user in ACL.Read only must not be able to write")
}

func TestCanWriteDeniedForStranger(t *testing.T) {
	m := sampleMetadata()
	assert.False(t, m.CanWrite("mallory"))
}

func TestCanWriteEmptyACL(t *testing.T) {
	m := Metadata{UserID: "alice"}
	assert.True(t, m.CanWrite("alice"))
	assert.False(t, m.CanWrite("bob"))
}

func TestToPlatformMetadataCopiesSearchVisibleFields(t *testing.T) {
	m := sampleMetadata()
	pm := m.ToPlatformMetadata()

	assert.Equal(t, m.FileName, pm.FileName)
	assert.Equal(t, m.MIMEType, pm.MIMEType)
	assert.Equal(t, m.UserID, pm.UserID)
	assert.ElementsMatch(t, m.Tags, pm.Tags)
	assert.Equal(t, m.ACL.Read, pm.ACL.Read)
	assert.Equal(t, m.CustomFields, pm.CustomFields)
}

func TestToPlatformMetadataIsIndependentCopy(t *testing.T) {
	m := sampleMetadata()
	pm := m.ToPlatformMetadata()

	pm.Tags[0] = "mutated"
	pm.CustomFields["department"] = "mutated"

	assert.Equal(t, "finance", m.Tags[0])
	assert.Equal(t, "finance", m.CustomFields["department"])
}
