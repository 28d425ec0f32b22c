package options

import (
	"encoding/json"
	"os"

	"github.com/tailscale/hujson"

	"github.com/iamNilotpal/ignite/internal/seg"
	"github.com/iamNilotpal/ignite/pkg/errors"
)

// Load reads path as JWCC (JSON-with-comments), standardizes it to plain
// JSON via hujson, and unmarshals it over a copy of the built-in defaults
// so any field the file omits keeps its default value. opts are applied
// after the file, letting CLI flags win over the file per spec §6.
func Load(path string, opts ...OptionFunc) (Options, error) {
	o := NewDefaultOptions()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Options{}, errors.NewConfigurationValidationError("path", err.Error())
		}

		standardized, err := hujson.Standardize(raw)
		if err != nil {
			return Options{}, errors.NewConfigurationValidationError("path", "invalid JWCC: "+err.Error())
		}

		if err := json.Unmarshal(standardized, &o); err != nil {
			return Options{}, errors.NewConfigurationValidationError("path", "invalid JSON: "+err.Error())
		}
	}

	for _, opt := range opts {
		opt(&o)
	}

	if err := Validate(o); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Validate checks the all-or-none TLS contract and the eviction policy
// name, returning a *errors.ValidationError describing the first problem
// found.
func Validate(o Options) error {
	if o.TLS.Enabled() {
		if o.TLS.CertPath == "" || o.TLS.ChainPath == "" || o.TLS.KeyPath == "" {
			return errors.NewConfigurationValidationError("tls", "cert_path, chain_path, and key_path must all be set or all be empty")
		}
	}
	if _, err := EvictionPolicy(o.Seg.Eviction); err != nil {
		return err
	}
	return nil
}

// EvictionPolicy maps the config's eviction name to an internal/seg
// policy constant.
func EvictionPolicy(name string) (seg.EvictionPolicy, error) {
	switch name {
	case "", "none":
		return seg.EvictNone, nil
	case "random":
		return seg.EvictRandom, nil
	case "fifo":
		return seg.EvictFIFO, nil
	case "cte":
		return seg.EvictCTE, nil
	case "util":
		return seg.EvictUtil, nil
	case "merge":
		return seg.EvictMerge, nil
	default:
		return seg.EvictNone, errors.NewConfigurationValidationError("seg.eviction", "must be one of none, random, fifo, cte, util, merge")
	}
}
