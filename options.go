// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package uacodec

import "log/slog"

// Default encoding limits.
const (
	DefaultMaxRecursionDepth = 64
	DefaultMaxArrayLength    = 1 << 20
	DefaultMaxStringLength   = 16777216 // 16MB, the default max message size
)

// Limits bounds the resources a single encode or decode may consume.
// Zero fields fall back to the defaults.
type Limits struct {
	MaxRecursionDepth int `mapstructure:"max-recursion-depth" yaml:"max-recursion-depth"`
	MaxArrayLength    int `mapstructure:"max-array-length" yaml:"max-array-length"`
	MaxStringLength   int `mapstructure:"max-string-length" yaml:"max-string-length"`
}

// DefaultLimits returns the default encoding limits.
func DefaultLimits() Limits {
	return Limits{
		MaxRecursionDepth: DefaultMaxRecursionDepth,
		MaxArrayLength:    DefaultMaxArrayLength,
		MaxStringLength:   DefaultMaxStringLength,
	}
}

// Option is a functional option for configuring encoders and decoders.
type Option func(*codecOptions)

type codecOptions struct {
	registry *Registry
	limits   Limits
	logger   *slog.Logger
}

func defaultOptions() *codecOptions {
	return &codecOptions{
		limits: DefaultLimits(),
		logger: slog.Default(),
	}
}

func buildOptions(opts []Option) *codecOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry
	}
	return o
}

// WithRegistry sets the structure registry consulted for ExtensionObjects.
// The default is DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *codecOptions) {
		o.registry = r
	}
}

// WithLimits sets all encoding limits at once. Zero fields keep their
// current value.
func WithLimits(l Limits) Option {
	return func(o *codecOptions) {
		if l.MaxRecursionDepth > 0 {
			o.limits.MaxRecursionDepth = l.MaxRecursionDepth
		}
		if l.MaxArrayLength > 0 {
			o.limits.MaxArrayLength = l.MaxArrayLength
		}
		if l.MaxStringLength > 0 {
			o.limits.MaxStringLength = l.MaxStringLength
		}
	}
}

// WithMaxRecursionDepth sets the maximum nesting of structures, variants,
// containers and diagnostic records.
func WithMaxRecursionDepth(n int) Option {
	return func(o *codecOptions) {
		o.limits.MaxRecursionDepth = n
	}
}

// WithMaxArrayLength sets the maximum number of elements in one array.
func WithMaxArrayLength(n int) Option {
	return func(o *codecOptions) {
		o.limits.MaxArrayLength = n
	}
}

// WithMaxStringLength sets the maximum length in bytes of one string or
// byte string.
func WithMaxStringLength(n int) Option {
	return func(o *codecOptions) {
		o.limits.MaxStringLength = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *codecOptions) {
		o.logger = logger
	}
}
