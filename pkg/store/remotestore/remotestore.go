// Package remotestore is a WriteStore backed by another process's REST
// API (pkg/rest), for deployments that run the reconciliation engine
// against a central store server instead of a local file.
package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/store"
	"github.com/acticloud/heatspreader/pkg/types"
)

// Store is a remotestore client.
type Store struct {
	baseURL string
	client  *http.Client
}

// Open returns a Store that talks to baseURL (e.g. "http://host:8080")
// with the given request timeout.
func Open(baseURL string, timeout time.Duration) *Store {
	return &Store{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type wireStack struct {
	StackName      string             `json:"stack_name"`
	Count          int                `json:"count"`
	CountParameter string             `json:"count_parameter"`
	Weights        map[string]float64 `json:"weights"`
	CloudOrder     []string           `json:"cloud_order,omitempty"`
}

func fromWire(w wireStack) *types.MulticloudStack {
	return &types.MulticloudStack{
		StackName:      w.StackName,
		Count:          w.Count,
		CountParameter: w.CountParameter,
		Weights:        w.Weights,
		CloudOrder:     w.CloudOrder,
	}
}

func toWire(s *types.MulticloudStack) wireStack {
	return wireStack{
		StackName:      s.StackName,
		Count:          s.Count,
		CountParameter: s.CountParameter,
		Weights:        s.Weights,
		CloudOrder:     s.Clouds(),
	}
}

func (s *Store) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	log.WithComponent("remotestore").Debug().Str("method", method).Str("path", path).Msg("backend_remote_request")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not reach store server %s: %w", s.baseURL, err)
	}
	return resp, nil
}

// List returns every registered stack.
func (s *Store) List(ctx context.Context) ([]*types.MulticloudStack, error) {
	resp, err := s.do(ctx, http.MethodGet, "/multicloudstack", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response listing stacks: %d", resp.StatusCode)
	}

	var wire struct {
		Stacks []wireStack `json:"stacks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	out := make([]*types.MulticloudStack, 0, len(wire.Stacks))
	for _, w := range wire.Stacks {
		out = append(out, fromWire(w))
	}
	return out, nil
}

// Get fetches a single stack.
func (s *Store) Get(ctx context.Context, stackName string) (*types.MulticloudStack, error) {
	resp, err := s.do(ctx, http.MethodGet, "/multicloudstack/"+url.PathEscape(stackName), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, store.ErrNotFound
	case http.StatusOK:
		var w wireStack
		if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
			return nil, err
		}
		return fromWire(w), nil
	default:
		return nil, fmt.Errorf("unexpected response fetching stack %s: %d", stackName, resp.StatusCode)
	}
}

// Create registers a new stack via PUT (idempotent upsert, matching the
// REST server's semantics).
func (s *Store) Create(ctx context.Context, stack *types.MulticloudStack) error {
	return s.put(ctx, stack)
}

// Update replaces a stack's fields via PUT.
func (s *Store) Update(ctx context.Context, stack *types.MulticloudStack) error {
	return s.put(ctx, stack)
}

func (s *Store) put(ctx context.Context, stack *types.MulticloudStack) error {
	resp, err := s.do(ctx, http.MethodPut, "/multicloudstack/"+url.PathEscape(stack.StackName), toWire(stack))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnprocessableEntity:
		var payload map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return fmt.Errorf("validation error: %v", payload)
	default:
		return fmt.Errorf("unexpected response writing stack %s: %d", stack.StackName, resp.StatusCode)
	}
}

// Delete removes a stack.
func (s *Store) Delete(ctx context.Context, stackName string) error {
	resp, err := s.do(ctx, http.MethodDelete, "/multicloudstack/"+url.PathEscape(stackName), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusOK, http.StatusNoContent:
		return nil
	default:
		return fmt.Errorf("unexpected response deleting stack %s: %d", stackName, resp.StatusCode)
	}
}

// SetWeight fetches the stack, updates one weight, and writes it back.
func (s *Store) SetWeight(ctx context.Context, stackName, cloudName string, weight float64) error {
	st, err := s.Get(ctx, stackName)
	if err != nil {
		return err
	}
	if _, exists := st.Weights[cloudName]; !exists {
		st.CloudOrder = append(st.CloudOrder, cloudName)
	}
	st.Weights[cloudName] = weight
	return s.Update(ctx, st)
}

// RemoveWeight fetches the stack, removes one weight, and writes it back.
func (s *Store) RemoveWeight(ctx context.Context, stackName, cloudName string) error {
	st, err := s.Get(ctx, stackName)
	if err != nil {
		return err
	}
	delete(st.Weights, cloudName)
	for i, c := range st.CloudOrder {
		if c == cloudName {
			st.CloudOrder = append(st.CloudOrder[:i], st.CloudOrder[i+1:]...)
			break
		}
	}
	return s.Update(ctx, st)
}

// Close releases no resources; the underlying *http.Client has no
// explicit shutdown.
func (s *Store) Close() error { return nil }
