package document

import (
	"encoding/binary"
	"math"

	"github.com/kira-labs/kira/internal/domain"
)

// buildHashFields converts a policy document into a flat map for HSET.
func buildHashFields(doc domain.PolicyDocument, vector []float32) map[string]string {
	m := map[string]string{
		fieldID:            doc.ID,
		fieldName:          doc.Name,
		fieldAuthority:     doc.Authority,
		fieldVersion:       doc.Version,
		fieldEffectiveDate: doc.EffectiveDate,
		fieldStatus:        doc.Status,
		fieldContent:       doc.Content,
	}
	if len(vector) > 0 {
		m[fieldVector] = vectorToBytes(vector)
	}
	return m
}

// parseHashFields converts a flat hash map back into a policy document.
// Hashes written without an id field take it from the key.
func parseHashFields(id string, m map[string]string) domain.PolicyDocument {
	if v := m[fieldID]; v != "" {
		id = v
	}
	authority := m[fieldAuthority]
	if authority == "" {
		authority = domain.UnknownAuthority
	}
	return domain.PolicyDocument{
		ID:            id,
		Name:          m[fieldName],
		Authority:     authority,
		Version:       m[fieldVersion],
		EffectiveDate: m[fieldEffectiveDate],
		Status:        domain.NormalizeStatus(m[fieldStatus]),
		Content:       m[fieldContent],
	}
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
