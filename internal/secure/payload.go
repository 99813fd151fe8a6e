package secure

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Open after Destroy
var ErrDestroyed = errors.New("sealed payload has been destroyed")

// Payload is a secret map encrypted at rest in memory
type Payload struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	keys      int
	destroyed bool
}

// Seal encodes values and moves them into an enclave. The intermediate
// encoding is wiped by memguard; the caller's map is not modified.
func Seal(values map[string]string) (*Payload, error) {
	if values == nil {
		values = map[string]string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	// data is never empty ("{}" at minimum), so NewEnclave cannot return nil
	return &Payload{
		enclave: memguard.NewEnclave(data),
		keys:    len(values),
	}, nil
}

// Open decrypts the payload into a new map owned by the caller
func (p *Payload) Open() (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return nil, ErrDestroyed
	}

	locked, err := p.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open enclave: %w", err)
	}
	defer locked.Destroy()

	values := make(map[string]string, p.keys)
	if err := json.Unmarshal(locked.Bytes(), &values); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return values, nil
}

// Len is the number of keys sealed in the payload
func (p *Payload) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.destroyed {
		return 0
	}
	return p.keys
}

// Destroy drops the enclave. It is safe to call more than once.
// The enclave ciphertext is left to the garbage collector; call
// memguard.Purge at exit to wipe the session key as well.
func (p *Payload) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return
	}
	p.enclave = nil
	p.keys = 0
	p.destroyed = true
}
