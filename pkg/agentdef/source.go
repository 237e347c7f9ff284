// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package agentdef

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jllopis/declagent/pkg/errors"
)

// Source loads raw agent documents by id. Documents are returned as YAML
// text so each interpretation parses them fresh.
type Source interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// Lister is implemented by sources that can enumerate their agent ids.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// candidates returns the relative file names tried for id, in order.
func candidates(id string) []string {
	return []string{id + ".yaml", id + ".yml", id + "/agent.yaml", id + "/agent.yml"}
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New(errors.CodeInvalidInput, "agent id is required", nil)
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return errors.Newf(errors.CodeInvalidInput, "invalid agent id %q", id)
	}
	return nil
}

func notFound(id string) error {
	return errors.Newf(errors.CodeNotFound, "agent %q not found", id).WithContext("agent", id)
}

// idFromName maps a directory entry to an agent id, or "" when the entry is
// not an agent document.
func idFromName(name string, isDir bool, hasAgentFile func(string) bool) string {
	if isDir {
		if hasAgentFile(name) {
			return name
		}
		return ""
	}
	for _, ext := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return ""
}

// DirSource searches a list of directories in order, returning the first
// match. Each directory may hold <id>.yaml, <id>.yml or <id>/agent.yaml.
type DirSource struct {
	dirs []string
}

// NewDirSource creates a DirSource over dirs.
func NewDirSource(dirs ...string) *DirSource {
	return &DirSource{dirs: dirs}
}

// Load implements Source.
func (s *DirSource) Load(ctx context.Context, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	for _, dir := range s.dirs {
		for _, name := range candidates(id) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
			if err == nil {
				return data, nil
			}
			if !os.IsNotExist(err) {
				return nil, errors.New(errors.CodeInternal, fmt.Sprintf("read agent %q", id), err)
			}
		}
	}
	return nil, notFound(id)
}

// List implements Lister.
func (s *DirSource) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.New(errors.CodeInternal, "list agents in "+dir, err)
		}
		for _, e := range entries {
			id := idFromName(e.Name(), e.IsDir(), func(sub string) bool {
				_, err := os.Stat(filepath.Join(dir, sub, "agent.yaml"))
				if err == nil {
					return true
				}
				_, err = os.Stat(filepath.Join(dir, sub, "agent.yml"))
				return err == nil
			})
			if id != "" {
				seen[id] = struct{}{}
			}
		}
	}
	return sortedKeys(seen), nil
}

// FSSource loads documents bundled in an fs.FS, typically an embed.FS.
type FSSource struct {
	fsys fs.FS
	root string
}

// NewFSSource creates an FSSource rooted at root inside fsys.
func NewFSSource(fsys fs.FS, root string) *FSSource {
	if root == "" {
		root = "."
	}
	return &FSSource{fsys: fsys, root: root}
}

// Load implements Source.
func (s *FSSource) Load(_ context.Context, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	for _, name := range candidates(id) {
		data, err := fs.ReadFile(s.fsys, path.Join(s.root, name))
		if err == nil {
			return data, nil
		}
		if !isNotExist(err) {
			return nil, errors.New(errors.CodeInternal, fmt.Sprintf("read bundled agent %q", id), err)
		}
	}
	return nil, notFound(id)
}

// List implements Lister.
func (s *FSSource) List(_ context.Context) ([]string, error) {
	entries, err := fs.ReadDir(s.fsys, s.root)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, errors.New(errors.CodeInternal, "list bundled agents", err)
	}
	seen := make(map[string]struct{})
	for _, e := range entries {
		id := idFromName(e.Name(), e.IsDir(), func(sub string) bool {
			_, err := fs.Stat(s.fsys, path.Join(s.root, sub, "agent.yaml"))
			if err == nil {
				return true
			}
			_, err = fs.Stat(s.fsys, path.Join(s.root, sub, "agent.yml"))
			return err == nil
		})
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// HTTPSource fetches documents from a remote registry at
// <baseURL>/agents/<id>.yaml and keeps them in an LRU cache with a TTL.
type HTTPSource struct {
	baseURL string
	client  *http.Client
	cache   *expirable.LRU[string, []byte]
	header  http.Header
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		if client != nil {
			s.client = client
		}
	}
}

// WithCache sets the cache capacity and entry TTL. A size of zero disables
// caching.
func WithCache(size int, ttl time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		if size <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, []byte](size, nil, ttl)
	}
}

// WithHeader adds a header sent with every request, e.g. Authorization.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSource) {
		s.header.Add(key, value)
	}
}

// NewHTTPSource creates an HTTPSource for baseURL.
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		cache:   expirable.NewLRU[string, []byte](128, nil, 5*time.Minute),
		header:  make(http.Header),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load implements Source.
func (s *HTTPSource) Load(ctx context.Context, id string) ([]byte, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, ok := s.cache.Get(id); ok {
			return data, nil
		}
	}

	endpoint := s.baseURL + "/agents/" + url.PathEscape(id) + ".yaml"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "build agent request", err)
	}
	for k, values := range s.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/yaml, text/yaml, text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("fetch agent %q", id), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notFound(id)
	case resp.StatusCode != http.StatusOK:
		return nil, errors.Newf(errors.CodeInternal, "fetch agent %q: registry returned status %d", id, resp.StatusCode).
			WithContext("status", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, fmt.Sprintf("read agent %q", id), err)
	}
	if s.cache != nil {
		s.cache.Add(id, data)
	}
	return data, nil
}

// Purge drops every cached document.
func (s *HTTPSource) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// ChainSource tries each source in order. A not-found result moves on to the
// next source; any other error stops the search.
type ChainSource []Source

// Load implements Source.
func (c ChainSource) Load(ctx context.Context, id string) ([]byte, error) {
	for _, src := range c {
		data, err := src.Load(ctx, id)
		if err == nil {
			return data, nil
		}
		if !errors.HasCode(err, errors.CodeNotFound) {
			return nil, err
		}
	}
	return nil, notFound(id)
}

// List implements Lister over every member that can list.
func (c ChainSource) List(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, src := range c {
		lister, ok := src.(Lister)
		if !ok {
			continue
		}
		ids, err := lister.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			seen[id] = struct{}{}
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
