// Package fakes provides test doubles for the services vaultcache talks to.
//
// VaultServer is an httptest server speaking the subset of the Vault HTTP
// API used by internal/vault (AppRole login, token renewal, KV v2 data and
// metadata). The AWS fakes implement the SDK client interfaces consumed by
// internal/bootstrap. Clock is a manually advanced time source for cache
// and token lifetime tests.
//
// Usage:
//
//	srv := fakes.NewVaultServer(t)
//	srv.PutSecret("prod/api", map[string]interface{}{"DB_PASSWORD": "pw"}, time.Now())
//	client, _ := vault.New(vault.Config{Address: srv.URL, Mount: srv.Mount})
package fakes
