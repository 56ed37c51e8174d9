// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup.
//
// Besides the struct tags, one cross-field rule is registered here: a Vault
// path without a key name is meaningless, so `crypto.vault_key` must be set
// whenever `crypto.vault_path` is.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Crypto)
		if c.VaultPath != "" && c.VaultKey == "" {
			sl.ReportError(c.VaultKey, "VaultKey", "vault_key", "required_with_path", "")
		}
	}, Crypto{})
	return val
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
