package provider

import (
	"context"
	"fmt"
	"log"
	"time"

	"orbitdrive/internal/domain"
)

const defaultCallTimeout = 30 * time.Second

// Orchestrator routes uploads, downloads and deletes across an ordered set of
// providers. The order is the failover sequence and is fixed at construction.
// Per-provider failures are logged and swallowed here; only exhaustion of the
// whole list crosses this boundary, as domain.ErrAllProvidersUnavailable.
type Orchestrator struct {
	providers   []Provider
	callTimeout time.Duration
}

func NewOrchestrator(providers []Provider, callTimeout time.Duration) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	seen := make(map[string]bool, len(providers))
	for _, p := range providers {
		if seen[p.ID()] {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID())
		}
		seen[p.ID()] = true
	}

	return &Orchestrator{
		providers:   providers,
		callTimeout: callTimeout,
	}, nil
}

// Put uploads to the first provider that reports available and accepts the
// object. Providers are tried strictly one at a time so the bytes end up in
// at most one backend. The availability probe is an optimization: it can go
// stale between the check and the upload, so an upload failure also just
// moves on to the next provider.
func (o *Orchestrator) Put(ctx context.Context, key string, data []byte, contentType string) (*PutResult, error) {
	for _, p := range o.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !o.probe(ctx, p) {
			log.Printf("[Storage] provider %s unavailable, trying next", p.ID())
			continue
		}

		location, err := o.upload(ctx, p, key, data, contentType)
		if err != nil {
			log.Printf("[Storage] upload to provider %s failed: %v", p.ID(), err)
			continue
		}

		return &PutResult{
			ProviderID: p.ID(),
			Key:        key,
			Location:   location,
			Size:       int64(len(data)),
		}, nil
	}

	return nil, domain.ErrAllProvidersUnavailable
}

// Get reads from the provider recorded at upload time first, then falls back
// to every other provider in priority order. Read failover only helps when
// another backend independently holds an equivalent object, but it costs one
// probe per backend and the alternative is a hard failure.
func (o *Orchestrator) Get(ctx context.Context, key, knownProviderID string) (Object, error) {
	ordered := make([]Provider, 0, len(o.providers))
	if known := o.byID(knownProviderID); known != nil {
		ordered = append(ordered, known)
	} else {
		log.Printf("[Storage] recorded provider %s is not configured, trying the full list", knownProviderID)
	}
	for _, p := range o.providers {
		if p.ID() != knownProviderID {
			ordered = append(ordered, p)
		}
	}

	for _, p := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !o.probe(ctx, p) {
			log.Printf("[Storage] provider %s unavailable for download, trying next", p.ID())
			continue
		}

		obj, err := o.download(ctx, p, key)
		if err != nil {
			log.Printf("[Storage] download from provider %s failed: %v", p.ID(), err)
			continue
		}

		return obj, nil
	}

	return nil, domain.ErrAllProvidersUnavailable
}

// Delete goes only to the provider that holds the object. Failing over a
// delete to another backend would remove nothing there and leave the real
// object orphaned, so an unknown id is a hard configuration error.
func (o *Orchestrator) Delete(ctx context.Context, key, knownProviderID string) (bool, error) {
	p := o.byID(knownProviderID)
	if p == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, knownProviderID)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	return p.Delete(callCtx, key)
}

func (o *Orchestrator) byID(id string) Provider {
	for _, p := range o.providers {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

func (o *Orchestrator) probe(ctx context.Context, p Provider) bool {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return p.IsAvailable(callCtx)
}

func (o *Orchestrator) upload(ctx context.Context, p Provider, key string, data []byte, contentType string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	return p.Upload(callCtx, key, data, contentType)
}

func (o *Orchestrator) download(ctx context.Context, p Provider, key string) (Object, error) {
	// No timeout cancel here: the caller streams the body after we return,
	// so the context must outlive this call.
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	obj, err := p.Download(callCtx, key)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{Object: obj, cancel: cancel}, nil
}

// cancelOnClose releases the download call's timeout context when the caller
// finishes reading the stream.
type cancelOnClose struct {
	Object
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.Object.Close()
	c.cancel()
	return err
}
