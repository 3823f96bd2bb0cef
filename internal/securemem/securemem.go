// Package securemem keeps secrets (provider API keys) in memguard-protected
// memory so they are not readable from swap or core dumps.
package securemem

import (
	"bytes"
	"crypto/subtle"
	"sync"

	"github.com/awnumar/memguard"
)

const redacted = "***"

// String is a secret held in locked, guarded memory. The zero value and nil
// are both valid and behave as an empty secret.
type String struct {
	mu  sync.RWMutex
	buf *memguard.LockedBuffer
}

// NewString moves plaintext into guarded memory.
func NewString(plaintext string) *String {
	return NewStringFromBytes([]byte(plaintext))
}

// NewStringFromBytes moves data into guarded memory. memguard wipes data.
func NewStringFromBytes(data []byte) *String {
	s := &String{}
	if len(data) > 0 {
		s.buf = memguard.NewBufferFromBytes(data)
	}
	return s
}

func (s *String) bytes() []byte {
	if s == nil || s.buf == nil || !s.buf.IsAlive() {
		return nil
	}
	return s.buf.Bytes()
}

// Reveal returns a plaintext copy in ordinary memory. Keep its lifetime short.
func (s *String) Reveal() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return string(s.bytes())
}

// String implements fmt.Stringer without leaking the secret.
func (s *String) String() string {
	if s.IsEmpty() {
		return ""
	}
	return redacted
}

// MarshalJSON always emits a redacted value.
func (s *String) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// IsEmpty reports whether the secret is empty or destroyed.
func (s *String) IsEmpty() bool {
	return s.Len() == 0
}

// IsBlank reports whether the secret is empty or whitespace only.
func (s *String) IsBlank() bool {
	if s == nil {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(bytes.TrimSpace(s.bytes())) == 0
}

// Len returns the secret length in bytes.
func (s *String) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bytes())
}

// Equal compares against plaintext in constant time.
func (s *String) Equal(other string) bool {
	if s == nil {
		return other == ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return subtle.ConstantTimeCompare(s.bytes(), []byte(other)) == 1
}

// WithValue runs fn with a temporary plaintext copy that is wiped afterwards.
func (s *String) WithValue(fn func(string)) {
	if s == nil {
		fn("")
		return
	}
	s.mu.RLock()
	b := append([]byte(nil), s.bytes()...)
	s.mu.RUnlock()
	defer memguard.WipeBytes(b)
	fn(string(b))
}

// Clone returns an independent copy.
func (s *String) Clone() *String {
	if s == nil {
		return NewString("")
	}
	s.mu.RLock()
	b := append([]byte(nil), s.bytes()...)
	s.mu.RUnlock()
	return NewStringFromBytes(b)
}

// Destroy wipes the secret. Further reads see an empty value.
func (s *String) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf != nil {
		s.buf.Destroy()
		s.buf = nil
	}
}
