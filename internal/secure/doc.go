// Package secure keeps cached secret payloads sealed in memory.
//
// A Payload wraps a memguard enclave: the encoded secret map is encrypted
// (XSalsa20Poly1305) as soon as it is sealed and is only decrypted into a
// locked buffer for the duration of an Open call.
//
//	p, err := secure.Seal(map[string]string{"DB_PASSWORD": "hunter2"})
//	if err != nil {
//	    return err
//	}
//	defer p.Destroy()
//
//	values, err := p.Open() // fresh plaintext copy for the caller
//
// Memory locking depends on RLIMIT_MEMLOCK on Linux. When it is not
// available memguard falls back to ordinary allocations and the payload is
// still encrypted at rest.
//
// This does not protect against an attacker with access to the running
// process, or against the plaintext copies handed out by Open.
package secure
