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

import (
	"log/slog"
	"sync"
)

// DefaultPoolSize is the number of idle encoders a pool keeps.
const DefaultPoolSize = 16

// maxRetainedBuffer is the largest buffer an idle encoder may keep.
const maxRetainedBuffer = 64 * 1024

// EncoderPool keeps idle binary encoders so that repeated encodes reuse
// their buffers. All encoders share the options given to NewEncoderPool.
// It is safe for concurrent use.
type EncoderPool struct {
	opts     []Option
	encoders chan *BinaryEncoder
	mu       sync.Mutex
	closed   bool
	metrics  *PoolMetrics
	logger   *slog.Logger
}

// NewEncoderPool creates a pool holding up to size idle encoders.
func NewEncoderPool(size int, opts ...Option) *EncoderPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &EncoderPool{
		opts:     opts,
		encoders: make(chan *BinaryEncoder, size),
		metrics:  &PoolMetrics{},
		logger:   buildOptions(opts).logger,
	}
}

var defaultPool = NewEncoderPool(DefaultPoolSize)

// Get returns an empty encoder, reusing an idle one when available.
func (p *EncoderPool) Get() (*BinaryEncoder, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	p.metrics.Gets.Add(1)
	select {
	case e, ok := <-p.encoders:
		if !ok {
			return nil, ErrPoolClosed
		}
		return e, nil
	default:
		p.metrics.Created.Add(1)
		return NewBinaryEncoder(p.opts...), nil
	}
}

// Put resets e and returns it to the pool. Encoders with large buffers are
// dropped.
func (p *EncoderPool) Put(e *BinaryEncoder) {
	if e == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || cap(e.buf) > maxRetainedBuffer {
		p.metrics.Discarded.Add(1)
		return
	}
	e.Reset()
	select {
	case p.encoders <- e:
		p.metrics.Puts.Add(1)
	default:
		p.metrics.Discarded.Add(1)
	}
}

// Encode runs fn against a pooled encoder and returns a copy of the bytes
// it produced.
func (p *EncoderPool) Encode(fn func(Encoder) error) ([]byte, error) {
	e, err := p.Get()
	if err != nil {
		return nil, err
	}
	defer p.Put(e)

	if err := fn(e); err != nil {
		return nil, err
	}
	if err := e.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), e.Bytes()...), nil
}

// Close drops all idle encoders. Later calls to Get fail with
// ErrPoolClosed.
func (p *EncoderPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.encoders)
	n := 0
	for range p.encoders {
		n++
	}
	p.metrics.Discarded.Add(int64(n))
	p.logger.Debug("encoder pool closed", slog.Int("idle", n))
	return nil
}

// Metrics returns the pool metrics.
func (p *EncoderPool) Metrics() *PoolMetrics {
	return p.metrics
}

// Size returns the number of idle encoders.
func (p *EncoderPool) Size() int {
	return len(p.encoders)
}
